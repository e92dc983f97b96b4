package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	gotreesitter "github.com/odvcencio/gotreesitter"
	"github.com/odvcencio/gotreesitter/grammars"
	classify "github.com/odvcencio/gts-suite/pkg/lang/treesitter"

	"github.com/odvcencio/hotreg/pkg/class"
)

var commentTypes = classify.CommentNodeTypes

// Decl is one class extracted from a source file, before it is bound to a
// particular load.
type Decl struct {
	Name      string
	Meta      class.Metadata
	Body      []byte
	StartLine int
	EndLine   int
}

type typeSpan struct {
	name       string
	body       []byte
	abstract   bool
	parent     string
	directives []class.Directive
	startLine  int
	endLine    int
}

// Extract parses a Go source file and returns its classes in declaration
// order. Every named top-level type is a class; method declarations are
// attached to the type named by their receiver.
func Extract(filename string, source []byte) ([]Decl, error) {
	entry := grammars.DetectLanguage(filename)
	if entry == nil {
		return nil, fmt.Errorf("unsupported file type: %s", filename)
	}
	if entry.Name != "go" {
		return nil, fmt.Errorf("unsupported language %q: %s", entry.Name, filename)
	}
	if len(source) == 0 {
		return nil, nil
	}

	bt, err := grammars.ParseFile(filename, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer bt.Release()

	root := bt.RootNode()
	var types []typeSpan
	var comments commentBlock
	methods := make(map[string]map[string]string)

	for i := 0; i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		nodeType := bt.NodeType(child)
		switch {
		case commentTypes[nodeType]:
			comments.add(bt, child)
			continue
		case nodeType == "type_declaration":
			directives := comments.directivesAbove(child)
			types = append(types, extractTypeSpans(bt, child, directives)...)
		case nodeType == "method_declaration":
			name, receiver := extractMethodNameReceiver(bt, child)
			recvType := receiverBaseType(receiver)
			if name != "" && recvType != "" {
				if methods[recvType] == nil {
					methods[recvType] = make(map[string]string)
				}
				methods[recvType][name] = hashBytes(source[child.StartByte():child.EndByte()])
			}
		}
		comments.reset()
	}

	decls := make([]Decl, 0, len(types))
	for _, ts := range types {
		meta := class.Metadata{
			MethodHashes: methods[ts.name],
			Abstract:     ts.abstract,
			SourceFile:   filename,
			ParentName:   ts.parent,
			Directives:   ts.directives,
		}
		for _, d := range ts.directives {
			if d.Name == "abstract" {
				meta.Abstract = true
			}
		}
		if meta.MethodHashes == nil {
			meta.MethodHashes = map[string]string{}
		}
		meta.ContentHash = contentHash(ts.body, meta.MethodHashes, ts.directives)
		decls = append(decls, Decl{
			Name:      ts.name,
			Meta:      meta,
			Body:      ts.body,
			StartLine: ts.startLine,
			EndLine:   ts.endLine,
		})
	}
	return decls, nil
}

// extractTypeSpans handles both `type T ...` and grouped `type ( ... )`
// declarations. Directives above a grouped declaration apply to every type_spec;
// comments inside the group apply to the type_spec that follows them.
func extractTypeSpans(bt *gotreesitter.BoundTree, decl *gotreesitter.Node, outer []class.Directive) []typeSpan {
	var (
		out   []typeSpan
		inner commentBlock
	)
	for i := 0; i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		if child == nil {
			continue
		}
		nodeType := bt.NodeType(child)
		if commentTypes[nodeType] {
			inner.add(bt, child)
			continue
		}
		if nodeType != "type_spec" && nodeType != "type_alias" {
			inner.reset()
			continue
		}
		ts, ok := extractTypeSpec(bt, child)
		if ok {
			ts.directives = append(append([]class.Directive(nil), outer...), inner.directivesAbove(child)...)
			if decl.NamedChildCount() == 1 {
				// Single spec: the whole `type` declaration is the class body.
				ts.body = []byte(bt.NodeText(decl))
				ts.startLine = int(decl.StartPoint().Row) + 1
				ts.endLine = int(decl.EndPoint().Row) + 1
			}
			out = append(out, ts)
		}
		inner.reset()
	}
	return out
}

func extractTypeSpec(bt *gotreesitter.BoundTree, spec *gotreesitter.Node) (typeSpan, bool) {
	ts := typeSpan{
		body:      []byte(bt.NodeText(spec)),
		startLine: int(spec.StartPoint().Row) + 1,
		endLine:   int(spec.EndPoint().Row) + 1,
	}
	for i := 0; i < spec.NamedChildCount(); i++ {
		child := spec.NamedChild(i)
		switch childType := bt.NodeType(child); {
		case childType == "type_identifier" && ts.name == "":
			ts.name = bt.NodeText(child)
		case childType == "type_parameter_list":
		case ts.name != "":
			switch childType {
			case "interface_type":
				ts.abstract = true
			case "struct_type":
				ts.parent = embeddedParent(bt, child)
			}
			return ts, true
		}
	}
	return ts, ts.name != ""
}

// embeddedParent returns the type name of the first embedded field of a
// struct type, or "".
func embeddedParent(bt *gotreesitter.BoundTree, structType *gotreesitter.Node) string {
	for i := 0; i < structType.NamedChildCount(); i++ {
		list := structType.NamedChild(i)
		if bt.NodeType(list) != "field_declaration_list" {
			continue
		}
		for j := 0; j < list.NamedChildCount(); j++ {
			field := list.NamedChild(j)
			if bt.NodeType(field) != "field_declaration" {
				continue
			}
			if name, ok := embeddedFieldType(bt, field); ok {
				return name
			}
		}
	}
	return ""
}

func embeddedFieldType(bt *gotreesitter.BoundTree, field *gotreesitter.Node) (string, bool) {
	var typeText string
	for k := 0; k < field.NamedChildCount(); k++ {
		child := field.NamedChild(k)
		switch bt.NodeType(child) {
		case "field_identifier":
			return "", false
		case "type_identifier", "qualified_type", "generic_type", "pointer_type":
			if typeText == "" {
				typeText = bt.NodeText(child)
			}
		}
	}
	if typeText == "" {
		return "", false
	}
	return baseTypeName(typeText), true
}

// extractMethodNameReceiver extracts name and receiver from a Go
// method_declaration: func (receiver) name(params) [result] body.
func extractMethodNameReceiver(bt *gotreesitter.BoundTree, node *gotreesitter.Node) (name, receiver string) {
	seenReceiver := false
	for i := 0; i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		childType := bt.NodeType(child)
		if childType == "parameter_list" && !seenReceiver {
			receiver = receiverText(bt, child)
			seenReceiver = true
			continue
		}
		if childType == "field_identifier" {
			name = bt.NodeText(child)
			break
		}
	}
	return name, receiver
}

func receiverText(bt *gotreesitter.BoundTree, paramList *gotreesitter.Node) string {
	for i := 0; i < paramList.NamedChildCount(); i++ {
		child := paramList.NamedChild(i)
		if bt.NodeType(child) == "parameter_declaration" {
			return bt.NodeText(child)
		}
	}
	text := bt.NodeText(paramList)
	if len(text) >= 2 && text[0] == '(' && text[len(text)-1] == ')' {
		return text[1 : len(text)-1]
	}
	return text
}

// receiverBaseType turns "t *T[K]" or "T" into "T".
func receiverBaseType(receiver string) string {
	fields := strings.Fields(receiver)
	if len(fields) == 0 {
		return ""
	}
	return baseTypeName(fields[len(fields)-1])
}

func baseTypeName(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimLeft(text, "*")
	if idx := strings.IndexByte(text, '['); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// commentBlock tracks the run of line-adjacent comments preceding a node.
type commentBlock struct {
	lines   []string
	lastRow int
}

func (c *commentBlock) add(bt *gotreesitter.BoundTree, node *gotreesitter.Node) {
	start := int(node.StartPoint().Row)
	if len(c.lines) > 0 && start > c.lastRow+1 {
		c.lines = nil
	}
	c.lines = append(c.lines, bt.NodeText(node))
	c.lastRow = int(node.EndPoint().Row)
}

func (c *commentBlock) reset() {
	c.lines = nil
}

// directivesAbove returns the directives of the block when it ends on the
// line directly above node.
func (c *commentBlock) directivesAbove(node *gotreesitter.Node) []class.Directive {
	if len(c.lines) == 0 || int(node.StartPoint().Row) != c.lastRow+1 {
		return nil
	}
	var out []class.Directive
	for _, text := range c.lines {
		for _, line := range strings.Split(text, "\n") {
			if d, ok := ParseDirective(line); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// contentHash covers the type body, every method hash in name order, and
// the directive lines. Edits outside those ranges leave it unchanged.
func contentHash(body []byte, methods map[string]string, directives []class.Directive) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte{0})
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "%s\x00%s\n", name, methods[name])
	}
	for _, d := range directives {
		fmt.Fprintf(h, "%s\n", d.Raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}

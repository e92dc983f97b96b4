package loader

import (
	"strings"
	"testing"
)

const shopSource = `package shop

import "fmt"

// Store persists carts.
type Store interface {
	Save(c *Cart) error
}

type Base struct {
	ID string
}

//hotreg:component scope=app lazy
//hotreg:route path=/cart
type Cart struct {
	Base
	Items []string
}

func (c *Cart) Add(item string) {
	c.Items = append(c.Items, item)
}

func (c Cart) Total() int {
	return len(c.Items)
}

func helper() {
	fmt.Println("helper")
}
`

func declByName(t *testing.T, decls []Decl, name string) Decl {
	t.Helper()
	for _, d := range decls {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no declaration named %q", name)
	return Decl{}
}

func TestExtractGoTypes(t *testing.T) {
	decls, err := Extract("shop/cart.go", []byte(shopSource))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	var names []string
	for _, d := range decls {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "Store,Base,Cart" {
		t.Fatalf("declarations = %v, want [Store Base Cart]", names)
	}

	store := declByName(t, decls, "Store")
	if !store.Meta.Abstract {
		t.Error("interface type should be abstract")
	}
	if len(store.Meta.Directives) != 0 {
		t.Errorf("Store directives = %v", store.Meta.Directives)
	}

	cart := declByName(t, decls, "Cart")
	if cart.Meta.Abstract {
		t.Error("struct type should not be abstract")
	}
	if cart.Meta.ParentName != "Base" {
		t.Errorf("Cart parent = %q, want Base", cart.Meta.ParentName)
	}
	if got := cart.Meta.Methods(); strings.Join(got, ",") != "Add,Total" {
		t.Errorf("Cart methods = %v", got)
	}
	if cart.Meta.SourceFile != "shop/cart.go" {
		t.Errorf("SourceFile = %q", cart.Meta.SourceFile)
	}
	if len(cart.Meta.Directives) != 2 {
		t.Fatalf("Cart directives = %v", cart.Meta.Directives)
	}
	comp := cart.Meta.Directives[0]
	if comp.Name != "component" || comp.Args["scope"] != "app" || !comp.Flag("lazy") {
		t.Errorf("component directive = %+v", comp)
	}
	if route := cart.Meta.Directives[1]; route.Name != "route" || route.Args["path"] != "/cart" {
		t.Errorf("route directive = %+v", route)
	}
	if !strings.HasPrefix(string(cart.Body), "type Cart struct") {
		t.Errorf("Cart body = %q", cart.Body)
	}
	if cart.StartLine != 16 {
		t.Errorf("Cart starts on line %d, want 16", cart.StartLine)
	}

	base := declByName(t, decls, "Base")
	if base.Meta.ParentName != "" || len(base.Meta.MethodHashes) != 0 {
		t.Errorf("Base meta = %+v", base.Meta)
	}
	if base.Meta.ContentHash == "" || base.Meta.ContentHash == cart.Meta.ContentHash {
		t.Error("content hashes should be set and distinct")
	}
}

func TestExtractMethodEditChangesOneHash(t *testing.T) {
	before, err := Extract("cart.go", []byte(shopSource))
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(shopSource, "return len(c.Items)", "return len(c.Items) + 0", 1)
	after, err := Extract("cart.go", []byte(edited))
	if err != nil {
		t.Fatal(err)
	}

	b, a := declByName(t, before, "Cart"), declByName(t, after, "Cart")
	if a.Meta.ContentHash == b.Meta.ContentHash {
		t.Fatal("class hash unchanged after method edit")
	}
	if a.Meta.MethodHashes["Add"] != b.Meta.MethodHashes["Add"] {
		t.Error("untouched method hash changed")
	}
	if a.Meta.MethodHashes["Total"] == b.Meta.MethodHashes["Total"] {
		t.Error("edited method hash unchanged")
	}
	for _, name := range []string{"Store", "Base"} {
		if declByName(t, before, name).Meta.ContentHash != declByName(t, after, name).Meta.ContentHash {
			t.Errorf("%s hash changed by an edit to another class", name)
		}
	}
}

func TestExtractUnrelatedEditKeepsHashes(t *testing.T) {
	before, err := Extract("cart.go", []byte(shopSource))
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(shopSource, `fmt.Println("helper")`, `fmt.Println("helper", 2)`, 1) + "\nvar added = 1\n"
	after, err := Extract("cart.go", []byte(edited))
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i].Meta.ContentHash != after[i].Meta.ContentHash {
			t.Errorf("%s hash changed by an unrelated edit", before[i].Name)
		}
	}
}

func TestExtractDirectiveEditChangesHash(t *testing.T) {
	before, err := Extract("cart.go", []byte(shopSource))
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(shopSource, "scope=app", "scope=request", 1)
	after, err := Extract("cart.go", []byte(edited))
	if err != nil {
		t.Fatal(err)
	}
	if declByName(t, before, "Cart").Meta.ContentHash == declByName(t, after, "Cart").Meta.ContentHash {
		t.Fatal("directive edit did not change the class hash")
	}
}

func TestExtractGroupedTypes(t *testing.T) {
	src := "package p\n\n//hotreg:model\ntype (\n\tA int\n\n\t//hotreg:abstract\n\tB struct{}\n)\n"
	decls, err := Extract("p.go", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(decls) != 2 {
		t.Fatalf("got %d declarations, want 2", len(decls))
	}
	a, b := declByName(t, decls, "A"), declByName(t, decls, "B")
	if len(a.Meta.Directives) != 1 || a.Meta.Directives[0].Name != "model" {
		t.Errorf("A directives = %v", a.Meta.Directives)
	}
	if len(b.Meta.Directives) != 2 || !b.Meta.Abstract {
		t.Errorf("B directives = %v abstract = %v", b.Meta.Directives, b.Meta.Abstract)
	}
	if string(a.Body) != "A int" {
		t.Errorf("A body = %q", a.Body)
	}
}

func TestExtractDetachedCommentIsNotDirective(t *testing.T) {
	src := "package p\n\n//hotreg:component\n\ntype T struct{}\n"
	decls, err := Extract("p.go", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(decls) != 1 || len(decls[0].Meta.Directives) != 0 {
		t.Fatalf("decls = %+v", decls)
	}
}

func TestExtractGenericReceiver(t *testing.T) {
	src := "package p\n\ntype List[T any] struct {\n\titems []T\n}\n\nfunc (l *List[T]) Len() int { return len(l.items) }\n"
	decls, err := Extract("p.go", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(decls) != 1 || decls[0].Name != "List" {
		t.Fatalf("decls = %+v", decls)
	}
	if _, ok := decls[0].Meta.MethodHashes["Len"]; !ok {
		t.Errorf("methods = %v", decls[0].Meta.MethodHashes)
	}
	if decls[0].Meta.ParentName != "" {
		t.Errorf("named field mistaken for embedding: %q", decls[0].Meta.ParentName)
	}
}

func TestExtractUnsupportedFile(t *testing.T) {
	if _, err := Extract("file.xyz", []byte("data")); err == nil {
		t.Fatal("expected error for unknown extension")
	}
	if _, err := Extract("main.py", []byte("def f(): pass\n")); err == nil {
		t.Fatal("expected error for non-Go source")
	}
}

func TestExtractEmptyFile(t *testing.T) {
	decls, err := Extract("empty.go", nil)
	if err != nil || len(decls) != 0 {
		t.Fatalf("Extract(empty) = %v, %v", decls, err)
	}
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		name string
		args map[string]string
	}{
		{"//hotreg:component", true, "component", nil},
		{"  //hotreg:route path=/x method=GET  ", true, "route", map[string]string{"path": "/x", "method": "GET"}},
		{"//hotreg:flagged lazy", true, "flagged", map[string]string{"lazy": ""}},
		{"// hotreg:component", false, "", nil},
		{"//hotreg:", false, "", nil},
		{"// plain comment", false, "", nil},
	}
	for _, tc := range tests {
		d, ok := ParseDirective(tc.line)
		if ok != tc.ok {
			t.Errorf("ParseDirective(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if d.Name != tc.name {
			t.Errorf("ParseDirective(%q) name = %q", tc.line, d.Name)
		}
		if len(d.Args) != len(tc.args) {
			t.Errorf("ParseDirective(%q) args = %v, want %v", tc.line, d.Args, tc.args)
		}
		for k, v := range tc.args {
			if d.Args[k] != v {
				t.Errorf("ParseDirective(%q) arg %s = %q, want %q", tc.line, k, d.Args[k], v)
			}
		}
	}
}

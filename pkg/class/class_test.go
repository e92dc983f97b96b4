package class

import (
	"testing"
)

func TestStableIDComponents(t *testing.T) {
	id := NewStableID("pkg/shop/cart.go", "Cart")
	if id != "pkg/shop/cart.go#Cart" {
		t.Fatalf("NewStableID = %q", id)
	}
	if id.File() != "pkg/shop/cart.go" {
		t.Errorf("File() = %q", id.File())
	}
	if id.Name() != "Cart" {
		t.Errorf("Name() = %q", id.Name())
	}
	if id.Dir() != "pkg/shop" {
		t.Errorf("Dir() = %q", id.Dir())
	}
}

func TestStableIDWithoutName(t *testing.T) {
	id := StableID("main.go")
	if id.File() != "main.go" || id.Name() != "" {
		t.Fatalf("File/Name = %q/%q", id.File(), id.Name())
	}
}

func TestNewDefaultsSourceFile(t *testing.T) {
	c := New("a/b.go", "T", Metadata{ContentHash: "0123456789abcdef"})
	if c.Meta.SourceFile != "a/b.go" {
		t.Errorf("SourceFile = %q", c.Meta.SourceFile)
	}
	if c.Generation != 0 {
		t.Errorf("Generation = %d, want 0", c.Generation)
	}
	if got := c.ShortHash(); got != "01234567" {
		t.Errorf("ShortHash = %q", got)
	}
	c.Generation = 3
	if got := c.String(); got != "a/b.go#T@3" {
		t.Errorf("String = %q", got)
	}
}

func TestMetadataMethodsSorted(t *testing.T) {
	m := Metadata{MethodHashes: map[string]string{"b": "2", "a": "1", "c": "3"}}
	got := m.Methods()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Methods = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Methods = %v, want %v", got, want)
		}
	}
}

func TestDirectivesNamed(t *testing.T) {
	m := Metadata{Directives: []Directive{
		{Name: "component", Args: map[string]string{"scope": "app"}},
		{Name: "route"},
		{Name: "component", Args: map[string]string{"lazy": ""}},
	}}
	got := m.DirectivesNamed("component")
	if len(got) != 2 {
		t.Fatalf("DirectivesNamed = %d entries, want 2", len(got))
	}
	if !got[1].Flag("lazy") || got[1].Flag("scope") {
		t.Errorf("unexpected flags on %+v", got[1])
	}
}

func TestEventLatest(t *testing.T) {
	prev := New("a.go", "A", Metadata{})
	curr := New("a.go", "A", Metadata{})
	if AddedEvent(curr).Latest() != curr {
		t.Error("Added.Latest should be Curr")
	}
	if RemovingEvent(prev).Latest() != prev {
		t.Error("Removing.Latest should be Prev")
	}
	if ChangedEvent(prev, curr).Latest() != curr {
		t.Error("Changed.Latest should be Curr")
	}
}

func TestSortByID(t *testing.T) {
	classes := []*Class{
		New("b.go", "X", Metadata{}),
		New("a.go", "Y", Metadata{}),
		New("a.go", "X", Metadata{}),
	}
	SortByID(classes)
	want := []StableID{"a.go#X", "a.go#Y", "b.go#X"}
	for i, c := range classes {
		if c.ID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, c.ID, want[i])
		}
	}
}

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/hotreg/pkg/class"
)

func sampleClasses() []*class.Class {
	b := class.New("shop/cart.go", "Cart", class.Metadata{
		ContentHash:  "c1",
		MethodHashes: map[string]string{"Add": "m1"},
		ParentName:   "Base",
		Directives:   []class.Directive{{Name: "route", Args: map[string]string{"path": "/cart"}, Raw: "//hotreg:route path=/cart"}},
	})
	b.Generation = 3
	a := class.New("shop/base.go", "Base", class.Metadata{ContentHash: "b1", Abstract: true})
	a.Generation = 1
	return []*class.Class{b, a}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".hotreg", "manifest.zst")
	m := FromClasses("/src", sampleClasses())
	if err := Write(path, m); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Version != FormatVersion || got.Root != "/src" {
		t.Fatalf("header = %d %q", got.Version, got.Root)
	}
	classes := got.ClassList()
	if len(classes) != 2 {
		t.Fatalf("classes = %d", len(classes))
	}
	// Records are ordered by identity.
	if classes[0].ID != "shop/base.go#Base" || classes[1].ID != "shop/cart.go#Cart" {
		t.Fatalf("order = %s, %s", classes[0].ID, classes[1].ID)
	}
	cart := classes[1]
	if cart.Generation != 3 || cart.Meta.MethodHashes["Add"] != "m1" || cart.Meta.ParentName != "Base" {
		t.Fatalf("cart = %+v", cart)
	}
	if len(cart.Meta.Directives) != 1 || cart.Meta.Directives[0].Args["path"] != "/cart" {
		t.Fatalf("directives = %+v", cart.Meta.Directives)
	}
	if !classes[0].Meta.Abstract {
		t.Fatal("abstract flag lost")
	}
	if files := got.Files(); len(files) != 2 || files[0] != "shop/base.go" {
		t.Fatalf("Files = %v", files)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "manifest.zst"))
	if !errors.Is(err, ErrNoManifest) {
		t.Fatalf("err = %v, want ErrNoManifest", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not zstd")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	m := FromClasses(".", nil)
	m.Version = FormatVersion + 1
	data, err := Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(data); err == nil {
		t.Fatal("expected version error")
	}
}

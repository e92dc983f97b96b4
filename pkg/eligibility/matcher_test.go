package eligibility

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEligibleDefaults(t *testing.T) {
	m := New()
	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"main.go", false, true},
		{"pkg/shop/cart.go", false, true},
		{"pkg/shop/cart_test.go", false, false},
		{"README.md", false, false},
		{".git", true, false},
		{".hotreg/manifest.zst", false, false},
		{"pkg/.cache/x.go", false, false},
		{"pkg", true, true},
	}
	for _, tc := range tests {
		if got := m.Eligible(tc.path, tc.isDir); got != tc.want {
			t.Errorf("Eligible(%q, %v) = %v, want %v", tc.path, tc.isDir, got, tc.want)
		}
	}
}

func TestIgnorePatterns(t *testing.T) {
	m := New(
		"# generated code",
		"vendor/",
		"*_gen.go",
		"internal/**/mock_*.go",
		"/tools",
		"!tools/keep.go",
	)
	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"vendor", true, true},
		{"vendor/lib/a.go", false, true},
		{"pkg/vendor.go", false, false},
		{"api_gen.go", false, true},
		{"pkg/api_gen.go", false, true},
		{"internal/mock_store.go", false, true},
		{"internal/a/b/mock_store.go", false, true},
		{"internal/store.go", false, false},
		{"tools", false, true},
		{"tools/keep.go", false, false},
	}
	for _, tc := range tests {
		if got := m.Ignored(tc.path, tc.isDir); got != tc.want {
			t.Errorf("Ignored(%q, %v) = %v, want %v", tc.path, tc.isDir, got, tc.want)
		}
	}
}

func TestLoadIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".hotregignore"), []byte("legacy/\n\n# comment\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(dir, ".hotregignore", []string{"*_gen.go"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Eligible("legacy", true) {
		t.Error("legacy/ should be skipped")
	}
	if m.Eligible("a_gen.go", false) {
		t.Error("extra pattern not applied")
	}
	if !m.Eligible("a.go", false) {
		t.Error("a.go should be eligible")
	}
}

func TestLoadMissingIgnoreFile(t *testing.T) {
	m, err := Load(t.TempDir(), ".hotregignore", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.Eligible("a.go", false) {
		t.Error("a.go should be eligible")
	}
}

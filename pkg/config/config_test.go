package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != dir {
		t.Errorf("Root = %q, want %q", cfg.Root, dir)
	}
	if cfg.Manifest != filepath.Join(dir, ".hotreg", "manifest.zst") {
		t.Errorf("Manifest = %q", cfg.Manifest)
	}
	if !cfg.LiveReload || cfg.Debounce.Duration != 150*time.Millisecond || cfg.Concurrency != 8 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Trace.Enabled {
		t.Errorf("log/trace defaults = %+v %+v", cfg.Log, cfg.Trace)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `root = "src"
exclude = ["gen/"]
live_reload = false
debounce = "1s"
concurrency = 2

[log]
level = "debug"
format = "json"

[metrics]
addr = ":9100"

[trace]
enabled = true
exporter = "file"
file_path = "traces.jsonl"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != filepath.Join(dir, "src") {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.Manifest != filepath.Join(dir, "src", ".hotreg", "manifest.zst") {
		t.Errorf("Manifest = %q", cfg.Manifest)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "gen/" {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if cfg.LiveReload || cfg.Debounce.Duration != time.Second || cfg.Concurrency != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Metrics.Addr != ":9100" {
		t.Errorf("log/metrics = %+v %+v", cfg.Log, cfg.Metrics)
	}
	if !cfg.Trace.Enabled || cfg.Trace.FilePath != filepath.Join(dir, "traces.jsonl") {
		t.Errorf("trace = %+v", cfg.Trace)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad toml", "root = ", "read config"},
		{"bad duration", `debounce = "soon"`, "read config"},
		{"negative concurrency", "concurrency = -1", "concurrency"},
		{"bad format", "[log]\nformat = \"xml\"", "log format"},
		{"bad level", "[log]\nlevel = \"loud\"", "log level"},
		{"bad exporter", "[trace]\nexporter = \"zipkin\"", "trace exporter"},
		{"file exporter without path", "[trace]\nenabled = true\nexporter = \"file\"", "file_path"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("250ms")); err != nil {
		t.Fatal(err)
	}
	out, err := d.MarshalText()
	if err != nil || string(out) != "250ms" {
		t.Fatalf("MarshalText = %q, %v", out, err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatal("expected an error for an unparsable duration")
	}
	if d.Duration != 250*time.Millisecond {
		t.Fatalf("failed parse overwrote the value: %s", d)
	}
}

func TestDurationDecodesWithoutTraceSection(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("debounce = \"2s\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce.Duration != 2*time.Second || cfg.Trace.Exporter != "stdout" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLibrary_BuiltinFallback(t *testing.T) {
	lib := NewLibrary()
	if lib.Get(TopicCheck) == "" {
		t.Fatal("expected builtin topic_check template")
	}
	if lib.Get("no_such_template") != "" {
		t.Fatal("expected empty result for unknown template")
	}
}

func TestLibrary_Render(t *testing.T) {
	lib := NewLibrary()
	rendered := lib.Render(TopicCheck, "Budget", "alice: moving on")
	if !strings.Contains(rendered, `"Budget"`) {
		t.Errorf("expected topic name in rendered prompt: %s", rendered)
	}
	if !strings.Contains(rendered, "alice: moving on") {
		t.Error("expected window text in rendered prompt")
	}
}

func TestLibrary_ReloadOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "topic_check.md"), []byte("override %q %s"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unknown names and non-md files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "bogus.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	lib := NewLibrary()
	if err := lib.Reload(dir); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := lib.Get(TopicCheck); got != "override %q %s" {
		t.Errorf("expected override, got %q", got)
	}
	if lib.Get(SummaryMerge) == "" {
		t.Error("expected builtin for non-overridden template")
	}
}

func TestLibrary_ReloadMissingDirClearsOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "topic_check.md"), []byte("override"), 0o644); err != nil {
		t.Fatal(err)
	}
	lib := NewLibrary()
	if err := lib.Reload(dir); err != nil {
		t.Fatal(err)
	}
	if err := lib.Reload(filepath.Join(dir, "gone")); err != nil {
		t.Fatalf("reload on missing dir should not fail: %v", err)
	}
	if lib.Get(TopicCheck) == "override" {
		t.Error("expected overrides cleared")
	}
}

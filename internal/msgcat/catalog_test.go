package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("game.last_move", map[string]any{"Move": "e4"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "last move: e4" {
		t.Fatalf("got %q", got)
	}
	if _, err := c.Render("game.last_move", map[string]any{}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if _, err := c.Render("nope", nil); err == nil {
		t.Fatalf("expected not found")
	}
	if c.Text("nope", nil) != "nope" {
		t.Fatalf("Text should fall back to the key")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("game:\n  no_move: \"--\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("game.no_move", nil); got != "--" {
		t.Fatalf("override not applied: %q", got)
	}
}

func TestOverrideDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("cli:\n  bye: x\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "b.yml"), []byte("cli:\n  bye: y\n"), 0o644)
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestRejectsNonStringLeaves(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("cli:\n  bye: 3\n"), 0o644)
	if _, err := New(dir); err == nil {
		t.Fatalf("expected error for numeric leaf")
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Default().Keys()
	if len(keys) == 0 {
		t.Fatalf("no keys")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted at %d: %v", i, keys)
		}
	}
}

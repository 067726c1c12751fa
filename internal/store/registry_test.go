package store

import (
	"path/filepath"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_AddAndList(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Add("notes.pdf", "/tmp/notes.pdf", 2048, "application/pdf")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID == "" {
		t.Fatal("empty ID")
	}

	if _, err := r.Add("diagram.png", "/tmp/diagram.png", 512, "image/png"); err != nil {
		t.Fatal(err)
	}

	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %d entries, want 2", len(list))
	}
}

func TestRegistry_LookupByName(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Add("notes.pdf", "/tmp/notes.pdf", 2048, "application/pdf"); err != nil {
		t.Fatal(err)
	}

	matches, err := r.LookupByName("notes.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].MimeType != "application/pdf" {
		t.Errorf("matches = %+v", matches)
	}

	none, err := r.LookupByName("missing.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unexpected matches: %+v", none)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Add("notes.pdf", "/tmp/notes.pdf", 2048, "application/pdf")
	if err != nil {
		t.Fatal(err)
	}

	removed, err := r.Remove(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("Remove reported no match for existing ID")
	}

	removed, err = r.Remove(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("Remove reported a match for deleted ID")
	}
}

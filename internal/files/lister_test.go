package files

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string, size int) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListEmptyRoot(t *testing.T) {
	l := NewLister(t.TempDir(), nil)
	entries := l.List()
	if entries == nil {
		t.Fatal("List returned nil, want empty slice")
	}
	if len(entries) != 0 {
		t.Fatalf("List returned %d entries", len(entries))
	}
}

func TestListMissingRoot(t *testing.T) {
	l := NewLister(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if entries := l.List(); len(entries) != 0 {
		t.Fatalf("List returned %d entries for missing root", len(entries))
	}
}

func TestListRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b.txt", 10)
	writeFile(t, root, "top.mkv", 3)

	l := NewLister(root, nil)
	entries := l.List()
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}

	byPath := map[string]FileEntry{}
	for _, e := range entries {
		byPath[e.RelativePath] = e
	}

	nested, ok := byPath["a/b.txt"]
	if !ok {
		t.Fatalf("missing a/b.txt in %+v", entries)
	}
	if nested.Name != "b.txt" {
		t.Errorf("Name = %q", nested.Name)
	}
	if nested.SizeBytes != 10 {
		t.Errorf("SizeBytes = %d", nested.SizeBytes)
	}
	if nested.DownloadURL != "/files/a/b.txt" {
		t.Errorf("DownloadURL = %q", nested.DownloadURL)
	}
}

func TestListSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty-dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "f.bin", 1)

	l := NewLister(root, nil)
	entries := l.List()
	if len(entries) != 1 || entries[0].RelativePath != "f.bin" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestDownloadURLEscapesSegments(t *testing.T) {
	got := DownloadURL("My Show/episode 01.mkv")
	want := "/files/My%20Show/episode%2001.mkv"
	if got != want {
		t.Fatalf("DownloadURL = %q, want %q", got, want)
	}
}

package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveOpenDelete(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	content := "hello medgate"
	relPath, size, checksum, err := st.Save("doc-1", "visit notes.pdf", strings.NewReader(content))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if size != int64(len(content)) {
		t.Fatalf("size mismatch: %d", size)
	}
	if len(checksum) != 64 {
		t.Fatalf("expected a 256-bit hex checksum, got %q", checksum)
	}
	if relPath != filepath.Join("doc-1", "visit notes.pdf") {
		t.Fatalf("unexpected relPath %q", relPath)
	}

	rc, err := st.Open(relPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != content {
		t.Fatalf("round trip mismatch: %q", got)
	}

	// identical content hashes identically
	_, _, checksum2, err := st.Save("doc-2", "copy.pdf", strings.NewReader(content))
	if err != nil {
		t.Fatalf("save copy: %v", err)
	}
	if checksum2 != checksum {
		t.Fatal("checksums differ for identical content")
	}

	if err := st.Delete("doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Open(relPath); err == nil {
		t.Fatal("open succeeded after delete")
	}
	if _, err := os.Stat(filepath.Join(st.Root(), "doc-1")); !os.IsNotExist(err) {
		t.Fatal("document directory survived delete")
	}
}

func TestOpenRejectsEscapes(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, path := range []string{"../etc/passwd", "a/../../etc/passwd", "/etc/passwd"} {
		if _, err := st.Open(path); err == nil {
			t.Fatalf("open accepted %q", path)
		}
	}
}

func TestDeleteRejectsBadIDs(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, id := range []string{"", "a/b", `a\b`} {
		if err := st.Delete(id); err == nil {
			t.Fatalf("delete accepted %q", id)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"visit notes.pdf":       "visit notes.pdf",
		"../../etc/passwd":      "passwd",
		`..\..\windows\sys.dll`: "sys.dll",
		"röntgen:bild?.pdf":     "r_ntgen_bild_.pdf",
		"...":                   "upload",
		"":                      "upload",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

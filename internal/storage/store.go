// Package storage keeps uploaded originals on disk under
// {root}/{document_id}/{filename}, mirroring the object-store layout the
// hosted deployment uses.
package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if root == "" {
		root = filepath.Join("data", "docs")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// Save streams r to {root}/{docID}/{sanitized filename} and returns the
// path relative to the root, the byte count and the BLAKE3 checksum.
func (s *Store) Save(docID, filename string, r io.Reader) (relPath string, size int64, checksum string, err error) {
	name := SanitizeFilename(filename)
	dir := filepath.Join(s.root, docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, "", fmt.Errorf("create document dir: %w", err)
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", 0, "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	hasher := blake3.New()
	size, err = io.Copy(io.MultiWriter(f, hasher), r)
	if err != nil {
		os.Remove(dst)
		return "", 0, "", fmt.Errorf("write file: %w", err)
	}
	return filepath.Join(docID, name), size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Open returns a reader for a previously saved file. relPath is the value
// Save returned; anything escaping the root is rejected.
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	cleaned := filepath.Clean(relPath)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("invalid storage path %q", relPath)
	}
	return os.Open(filepath.Join(s.root, cleaned))
}

// Delete removes a document's directory and everything in it.
func (s *Store) Delete(docID string) error {
	if docID == "" || strings.ContainsAny(docID, `/\`) {
		return fmt.Errorf("invalid document id %q", docID)
	}
	return os.RemoveAll(filepath.Join(s.root, docID))
}

// SanitizeFilename strips any path components and replaces characters that
// are unsafe on common filesystems. Empty results fall back to "upload".
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, `/`))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.Trim(out, ".")
	if out == "" {
		return "upload"
	}
	return out
}

// Package extract turns stored documents into plain text for chunking and
// embedding.
package extract

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for document types the pipeline cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// Text extracts the text content of a document, dispatching on the file
// extension of its original name.
func Text(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return plainText(r)
	case ".md":
		return markdownText(r)
	case ".pdf":
		return pdfText(r)
	case ".docx":
		return docxText(r)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

func plainText(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return normalize(string(raw)), nil
}

// normalize collapses runs of blank lines and trims trailing space so the
// chunker sees consistent paragraph boundaries regardless of source format.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

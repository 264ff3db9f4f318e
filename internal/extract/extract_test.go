package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTextPlain(t *testing.T) {
	in := "Line one  \r\nLine two\r\n\r\n\r\nLine three\n"
	got, err := Text("notes.txt", strings.NewReader(in))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "Line one\nLine two\n\nLine three"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTextMarkdownStripsFormatting(t *testing.T) {
	in := "# Visit Summary\n\nPatient reports **mild** pain.\n\n- item one\n- item two\n"
	got, err := Text("summary.md", strings.NewReader(in))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, want := range []string{"Visit Summary", "mild", "item one", "item two"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output, got %q", want, got)
		}
	}
	for _, unwanted := range []string{"#", "**", "- item"} {
		if strings.Contains(got, unwanted) {
			t.Fatalf("markup %q survived extraction: %q", unwanted, got)
		}
	}
}

func TestTextDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	got, err := Text("report.docx", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTextDocxMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/styles.xml")
	_, _ = w.Write([]byte("<styles/>"))
	_ = zw.Close()

	if _, err := Text("report.docx", bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected an error for a docx without document.xml")
	}
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text("virus.exe", strings.NewReader("MZ"))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestChunkShortTextIsOneChunk(t *testing.T) {
	got := Chunk("short text", DefaultChunkSize, DefaultChunkOverlap)
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("got %v", got)
	}
}

func TestChunkEmpty(t *testing.T) {
	if got := Chunk("   \n\t ", DefaultChunkSize, DefaultChunkOverlap); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestChunkOverlapAndCoverage(t *testing.T) {
	words := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ") // 400*5-1 = 1999 runes

	chunks := Chunk(text, 1200, 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 1200 {
			t.Fatalf("chunk %d exceeds the window: %d runes", i, len([]rune(c)))
		}
		// windows end on whitespace, so no chunk may split a word
		for _, w := range strings.Fields(c) {
			if w != "word" {
				t.Fatalf("chunk %d split a word: %q", i, w)
			}
		}
	}
	// overlap means consecutive chunks share a suffix/prefix
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("expected overlap between chunks, tail %q not in %q...", tail, chunks[1][:40])
	}
}

func TestChunkDefaultsApplied(t *testing.T) {
	text := strings.Repeat("a ", 1000) // 2000 runes
	withDefaults := Chunk(text, 0, -1)
	explicit := Chunk(text, DefaultChunkSize, DefaultChunkSize/6)
	if len(withDefaults) != len(explicit) {
		t.Fatalf("defaults mismatch: %d vs %d chunks", len(withDefaults), len(explicit))
	}
}

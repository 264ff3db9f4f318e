package extract

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Chunk splits text into overlapping windows of roughly size runes for
// embedding. Windows prefer to end on whitespace so words stay intact;
// overlap keeps context across boundaries.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 6
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			// walk back to the nearest whitespace, but never lose more
			// than a quarter of the window
			cut := end
			for cut > start+size*3/4 && !unicode.IsSpace(runes[cut-1]) {
				cut--
			}
			if cut > start+size*3/4 {
				end = cut
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

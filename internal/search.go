package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// VectorLiteral renders an embedding as the pgvector input literal,
// e.g. "[0.12,-0.5,0.0]". Passed as a text parameter and cast with
// ::vector inside the query.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

const matchChunksQuery = `
SELECT c.document_id, d.filename, c.content,
       1 - (c.embedding <=> $1::vector) AS similarity
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.user_id = $2
  AND d.status = 'completed'
  AND 1 - (c.embedding <=> $1::vector) >= $3
ORDER BY c.embedding <=> $1::vector
LIMIT $4`

// MatchChunks returns the caller's most similar completed chunks by cosine
// similarity. threshold filters weak matches, count caps the result set.
func MatchChunks(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, count int) ([]ChunkMatch, error) {
	if count <= 0 {
		count = 5
	}
	matches := []ChunkMatch{}
	err := DB.SelectContext(ctx, &matches, matchChunksQuery,
		VectorLiteral(embedding), userID, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	return matches, nil
}

package agent

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	// Dimensions matches the hosted embedding model's output width.
	Dimensions = 768

	EmbedModel = "mims-harvard/ToolRAG-T1-GTE-Qwen2-1.5B"
)

// Embed produces a deterministic bag-of-words embedding: each token seeds
// a xorshift stream from its BLAKE3 digest and the streams are summed.
// Identical text always embeds identically, and texts sharing vocabulary
// land closer in cosine space, which is what retrieval needs from a local
// stand-in for the hosted model.
func Embed(text string, normalize bool) []float32 {
	vec := make([]float32, Dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		digest := blake3.Sum256([]byte(tok))
		state := binary.LittleEndian.Uint64(digest[:8]) | 1
		for i := 0; i < Dimensions; i++ {
			state ^= state << 13
			state ^= state >> 7
			state ^= state << 17
			vec[i] += float32(int64(state)) / float32(math.MaxInt64)
		}
	}
	if normalize {
		l2Normalize(vec)
	}
	return vec
}

func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// CosineSimilarity of two equal-length vectors; zero for mismatched input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package collab

import (
	"context"
	"crypto/sha256"
	"unicode"
)

// NoopOcrService returns its input bytes back as text unchanged. OCR is out
// of scope per spec §1; this stub exists only so the pipeline's wiring and
// tests don't need a real OCR backend.
type NoopOcrService struct{}

func (NoopOcrService) Process(ctx context.Context, document []byte) (OcrOutput, error) {
	text := string(document)
	return OcrOutput{Text: text, PageCount: 1, PageOffsets: []int{0}}, nil
}

// HashEmbedder is a deterministic, dependency-free stand-in for a real
// embedding model: each text maps to a fixed-dimension vector derived from
// its content hash. It satisfies Embedder's "constant dimension" and
// "deterministic for identical input" requirements without needing network
// access, which is what docgraph's own tests run against.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder constructs a HashEmbedder with the given fixed dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dim() int { return e.dim }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectorize(t)
	}
	return out, nil
}

func (e *HashEmbedder) Query(ctx context.Context, text string) ([]float32, error) {
	return e.vectorize(text), nil
}

func (e *HashEmbedder) vectorize(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, e.dim)
	var norm float32
	for i := range v {
		v[i] = float32(sum[i%len(sum)]) / 255.0
		norm += v[i] * v[i]
	}
	if norm == 0 {
		return v
	}
	scale := float32(1.0) / sqrt32(norm)
	for i := range v {
		v[i] *= scale
	}
	return v
}

func sqrt32(x float32) float32 {
	// Newton's method, a handful of iterations is ample precision for a
	// unit-normalization that only needs to be stable, not exact.
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 8; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// FixedWidthChunker splits text into fixed-size, non-overlapping-in-index
// windows on whitespace boundaries. A real Chunker would respect document
// structure (headings, sections); this stub is sufficient for exercising
// the pipeline end to end without a layout-aware dependency.
type FixedWidthChunker struct {
	WindowChars int
}

func NewFixedWidthChunker(windowChars int) *FixedWidthChunker {
	if windowChars <= 0 {
		windowChars = 1000
	}
	return &FixedWidthChunker{WindowChars: windowChars}
}

func (c *FixedWidthChunker) Chunk(ctx context.Context, text string, pageOffsets []int) ([]ChunkResult, error) {
	runes := []rune(text)
	var out []ChunkResult
	start := 0
	for start < len(runes) {
		end := start + c.WindowChars
		if end > len(runes) {
			end = len(runes)
		} else {
			for end < len(runes) && !unicode.IsSpace(runes[end]) {
				end++
			}
		}
		out = append(out, ChunkResult{
			Text:           string(runes[start:end]),
			CharacterStart: start,
			CharacterEnd:   end,
			Atomic:         false,
		})
		start = end
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return out, nil
}

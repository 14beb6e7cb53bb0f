// Package collab defines the external collaborator contracts docgraph's
// pipeline consumes: OCR, embedding, generative classification/description,
// and chunking. Only Generator has a network-backed implementation in this
// repo; the others are out of scope (§1 Non-goals) but are still defined so
// the pipeline's dependency graph is complete and testable against stubs.
package collab

import "context"

// OcrService turns a document's raw bytes into extracted text.
type OcrService interface {
	Process(ctx context.Context, document []byte) (OcrOutput, error)
}

// OcrOutput is the result of one OcrService.Process call.
type OcrOutput struct {
	Text        string
	PageCount   int
	PageOffsets []int
	BlocksJSON  string
	Quality     float64
	DurationMs  int64
	Cost        float64
}

// Embedder turns text into fixed-dimension unit vectors. Dim is constant
// process-wide; Query is for ephemeral similarity search, not persisted.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Query(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Generator is the generative-model collaborator used by the entity
// resolver's ai mode and the relationship classifier's generative fallback.
type Generator interface {
	// Classify sends prompt and asks the model to return JSON matching
	// responseSchema (a bare description, not enforced client-side beyond a
	// best-effort unmarshal by the caller).
	Classify(ctx context.Context, prompt string, responseSchema string) (string, error)
	// Describe captions an image given a prompt. Out of scope per spec §1;
	// kept only so the contract surface matches §6.2 completely.
	Describe(ctx context.Context, image []byte, prompt string) (string, error)
}

// Chunker splits OCR'd text into contiguous, non-overlapping-in-index
// segments.
type Chunker interface {
	Chunk(ctx context.Context, text string, pageOffsets []int) ([]ChunkResult, error)
}

// ChunkResult is one segment produced by a Chunker.
type ChunkResult struct {
	Text           string
	CharacterStart int
	CharacterEnd   int
	PageNumber     *int
	PageRange      string
	HeadingContext string
	SectionPath    string
	ContentType    string
	Atomic         bool
}

package types

import (
	"context"

	"github.com/xhad/carescope/internal/models"
)

// Embedder maps texts to fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CorpusFitter is implemented by embedders that learn from the corpus
// (TF-IDF). Fit returns a new embedder; the receiver is not modified.
type CorpusFitter interface {
	Fit(ctx context.Context, profiles []string) (Embedder, error)
}

// Generator is the external text-generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string, payload Payload) (string, error)
}

// EmbeddingCache persists vectors keyed by a digest of embedder name and text.
type EmbeddingCache interface {
	Get(ctx context.Context, keys []string) (map[string][]float32, error)
	Put(ctx context.Context, entries map[string][]float32) error
	Close() error
}

type ContextEntry struct {
	Rank     int             `json:"rank"`
	RowID    int             `json:"row_id"`
	Score    float64         `json:"score"`
	Text     string          `json:"text"`
	Citation models.Citation `json:"citation"`
}

// Payload is the structured material handed to the generator alongside the
// prompt. Citations is the complete set the answer may reference.
type Payload struct {
	Query     string            `json:"query"`
	Intent    models.Intent     `json:"intent"`
	Context   []ContextEntry    `json:"context"`
	Analysis  any               `json:"analysis,omitempty"`
	Steps     []string          `json:"reasoning_steps,omitempty"`
	Citations []models.Citation `json:"citations"`
}

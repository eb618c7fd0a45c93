package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/carescope/internal/errs"
	"golang.org/x/time/rate"
)

// EmbedderConfig represents the configuration for an Ollama embedder.
type EmbedderConfig struct {
	Model             string
	BaseURL           string // Ollama server URL
	RequestsPerMinute int
}

// embeddingClient is the part of *ollama.LLM the embedder uses.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder implements types.Embedder against an Ollama embedding model.
type Embedder struct {
	config  EmbedderConfig
	client  embeddingClient
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = config.withDefaults()
	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return newEmbedder(config, emb), nil
}

// NewEmbedder uses nomic-embed-text on a local Ollama server.
func NewEmbedder() (*Embedder, error) {
	return NewEmbedderWithConfig(EmbedderConfig{})
}

func newEmbedder(config EmbedderConfig, client embeddingClient) *Embedder {
	return &Embedder{
		config:  config,
		client:  client,
		limiter: newLimiter(config.RequestsPerMinute),
	}
}

func (c EmbedderConfig) withDefaults() EmbedderConfig {
	if c.Model == "" {
		c.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return c
}

// Name identifies the model so cached vectors from different models never mix.
func (e *Embedder) Name() string { return "ollama:" + e.config.Model }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, errs.Classify(ctx, err, errs.ErrEmbedding)
	}
	vecs, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, errs.Classify(ctx, err, errs.ErrEmbedding)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", errs.ErrEmbedding, len(vecs), len(texts))
	}
	return vecs, nil
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/citation"
	"golang.org/x/time/rate"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	// ContextTemplate receives the prompt and the rendered payload.
	ContextTemplate   string
	BaseURL           string // Ollama server URL
	RequestsPerMinute int
}

// ChatEngine generates answers from a prompt plus the pipeline payload.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	limiter *rate.Limiter
}

// NewWithConfig creates a ChatEngine backed by an Ollama server.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return newEngine(config, llm), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	return newEngine(config, model), nil
}

func newEngine(config ChatConfig, model llms.Model) *ChatEngine {
	return &ChatEngine{
		config:  config,
		llm:     model,
		limiter: newLimiter(config.RequestsPerMinute),
	}
}

func (c ChatConfig) withDefaults() (ChatConfig, error) {
	if c.Model == "" {
		c.Model = "mistral" // Default Ollama model
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return c, fmt.Errorf("temperature must be between 0 and 1")
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens < 0 {
		return c, fmt.Errorf("max tokens cannot be negative")
	} else if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
	if c.SystemTemplate == "" {
		c.SystemTemplate = "You are an expert healthcare infrastructure analyst helping NGO planners identify medical resource gaps. " +
			"Answer only from the supplied context and analysis, and cite rows for every claim."
	}
	if c.ContextTemplate == "" {
		c.ContextTemplate = "%s\n\n%s"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return c, nil
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Generate implements types.Generator.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string, payload types.Payload) (string, error) {
	return ce.generate(ctx, prompt, payload)
}

// GenerateStream is Generate with each chunk passed to onChunk as it arrives.
// The full answer is returned once the stream ends.
func (ce *ChatEngine) GenerateStream(ctx context.Context, prompt string, payload types.Payload, onChunk func(string)) (string, error) {
	return ce.generate(ctx, prompt, payload, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if onChunk != nil {
			onChunk(string(chunk))
		}
		return nil
	}))
}

// Streaming returns a Generator that streams every answer to onChunk.
func (ce *ChatEngine) Streaming(onChunk func(string)) types.Generator {
	return streamingGenerator{engine: ce, onChunk: onChunk}
}

type streamingGenerator struct {
	engine  *ChatEngine
	onChunk func(string)
}

func (s streamingGenerator) Generate(ctx context.Context, prompt string, payload types.Payload) (string, error) {
	return s.engine.GenerateStream(ctx, prompt, payload, s.onChunk)
}

func (ce *ChatEngine) generate(ctx context.Context, prompt string, payload types.Payload, extra ...llms.CallOption) (string, error) {
	if err := ce.limiter.Wait(ctx); err != nil {
		return "", errs.Classify(ctx, err, errs.ErrGeneration)
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(ce.config.ContextTemplate, prompt, RenderPayload(payload))),
	}
	opts := append([]llms.CallOption{
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	}, extra...)

	start := time.Now()
	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", errs.Classify(ctx, fmt.Errorf("chat error: %w", err), errs.ErrGeneration)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("%w: no response from LLM", errs.ErrGeneration)
	}
	logger.Debug("generation with %s took %s", ce.config.Model, time.Since(start).Round(time.Millisecond))
	return response.Choices[0].Content, nil
}

// RenderPayload lays out the payload as the sections the model reads:
// retrieved context by row, analysis as JSON, reasoning steps and the
// citations it may use.
func RenderPayload(p types.Payload) string {
	var b strings.Builder

	b.WriteString("Retrieved Context:\n")
	if len(p.Context) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range p.Context {
		fmt.Fprintf(&b, "[Source %d - Row %d]: %s\n", e.Rank, e.RowID, e.Text)
	}

	if p.Analysis != nil {
		data, err := json.MarshalIndent(p.Analysis, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf("%q", err.Error()))
		}
		fmt.Fprintf(&b, "\nAnalysis Results:\n%s\n", data)
	}

	if len(p.Steps) > 0 {
		b.WriteString("\nReasoning Steps Taken:\n")
		for i, s := range p.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}

	if len(p.Citations) > 0 {
		b.WriteString("\nCitations:\n")
		b.WriteString(citation.Render(p.Citations))
	}
	return b.String()
}

// Package service is the entry point the CLI and server share. It owns the
// index holder and the agent, and exposes the query, desert, validation and
// rebuild operations against whichever index version is live.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/agent"
	"github.com/xhad/carescope/pkg/classifier"
	"github.com/xhad/carescope/pkg/config"
	"github.com/xhad/carescope/pkg/corpus"
	"github.com/xhad/carescope/pkg/desert"
	"github.com/xhad/carescope/pkg/embed"
	"github.com/xhad/carescope/pkg/index"
	"github.com/xhad/carescope/pkg/llm"
	"github.com/xhad/carescope/pkg/metrics"
	"github.com/xhad/carescope/pkg/processor"
	"github.com/xhad/carescope/pkg/store"
	"github.com/xhad/carescope/pkg/validator"
)

type Options struct {
	Embedder  types.Embedder
	Generator types.Generator
	Index     index.Options
	Agent     agent.Options
	Rules     []validator.Rule
	Metrics   *metrics.Metrics
	// Cache is closed by Close.
	Cache types.EmbeddingCache
}

type Service struct {
	holder     *index.Holder
	agent      *agent.Agent
	generator  types.Generator
	classifier *classifier.Classifier
	validator  *validator.Validator
	metrics    *metrics.Metrics
	agentOpts  agent.Options
	cache      types.EmbeddingCache
}

// streamer is implemented by generators that can emit partial answers.
type streamer interface {
	Streaming(onChunk func(string)) types.Generator
}

func New(opts Options) *Service {
	if opts.Metrics != nil && opts.Agent.Observer == nil {
		opts.Agent.Observer = opts.Metrics
	}
	if opts.Rules == nil {
		opts.Rules = validator.Rules()
	}
	s := &Service{
		holder:     index.NewHolder(opts.Embedder, opts.Index),
		generator:  opts.Generator,
		classifier: classifier.Default(),
		validator:  validator.New(opts.Rules),
		metrics:    opts.Metrics,
		agentOpts:  opts.Agent.WithDefaults(),
		cache:      opts.Cache,
	}
	s.agent = agent.New(s.holder, opts.Generator, s.classifier, s.validator, opts.Agent)
	return s
}

// NewFromConfig selects the embedder, embedding cache and generator the
// configuration names. The returned service has no index until Rebuild.
// progress, if set, receives embedding progress during rebuilds.
func NewFromConfig(ctx context.Context, cfg *config.Config, progress func(done, total int)) (*Service, error) {
	m := metrics.New()
	procConfig := processor.ProcessorConfig{
		MaxListItems:    cfg.Processor.MaxListItems,
		RemoveStopwords: !cfg.Processor.KeepStopwords,
	}

	var (
		embedder types.Embedder
		cache    types.EmbeddingCache
	)
	switch cfg.Embedding.Type {
	case "ollama":
		e, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:             cfg.Embedding.Model,
			BaseURL:           cfg.LLM.BaseURL,
			RequestsPerMinute: cfg.LLM.RateLimit,
		})
		if err != nil {
			return nil, err
		}
		embedder = e

		cache, err = openCache(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			embedder = embed.NewCached(e, cache).WithObserver(m.ObserveCache)
		}
	default:
		if cfg.Embedding.Cache != "none" {
			logger.Warn("embedding cache %q ignored for the local tfidf embedder", cfg.Embedding.Cache)
		}
		embedder = embed.NewTFIDFWithConfig(procConfig)
	}

	generator, err := llm.NewWithConfig(llm.ChatConfig{
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerMinute: cfg.LLM.RateLimit,
	})
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, err
	}

	return New(Options{
		Embedder:  embedder,
		Generator: generator,
		Index: index.Options{
			BatchSize:   cfg.Embedding.BatchSize,
			Concurrency: cfg.Embedding.Concurrency,
			Processor:   procConfig,
			OnProgress:  progress,
		},
		Agent: agent.Options{
			TopK:              cfg.Pipeline.TopK,
			MinNameSimilarity: cfg.Pipeline.MinNameSimilarity,
			EmbeddingTimeout:  cfg.Embedding.Timeout,
			GenerationTimeout: cfg.Pipeline.GenerationTimeout,
			MaxContextChars:   cfg.Pipeline.MaxContextChars,
		},
		Rules:   cfg.ValidationRules(),
		Metrics: m,
		Cache:   cache,
	}), nil
}

func openCache(ctx context.Context, cfg *config.Config) (types.EmbeddingCache, error) {
	switch cfg.Embedding.Cache {
	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Database.VectorDim,
			BatchSize:  cfg.Database.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		return vs, nil
	}
	return nil, nil
}

// Process answers a free-text query. See agent.Agent.Process.
func (s *Service) Process(ctx context.Context, query string, hint *models.Intent) (*agent.Result, error) {
	return s.agent.Process(ctx, query, hint)
}

// ProcessStream is Process with the answer streamed to onChunk when the
// generator supports it. Otherwise onChunk receives the whole answer once.
func (s *Service) ProcessStream(ctx context.Context, query string, hint *models.Intent, onChunk func(string)) (*agent.Result, error) {
	st, ok := s.generator.(streamer)
	if !ok {
		res, err := s.agent.Process(ctx, query, hint)
		if err == nil && onChunk != nil {
			onChunk(res.Answer)
		}
		return res, err
	}
	a := agent.New(s.holder, st.Streaming(onChunk), s.classifier, s.validator, s.agentOpts)
	return a.Process(ctx, query, hint)
}

// DetectDesert runs desert detection for one region against the live
// corpus. Coverage scans every region.
func (s *Service) DetectDesert(specialty, region string) (desert.Result, error) {
	h, err := s.holder.Current()
	if err != nil {
		return desert.Result{}, err
	}
	return desert.Detect(h.Corpus(), specialty, region), nil
}

// Coverage scans specialty across every region, most severe first.
func (s *Service) Coverage(specialty string) ([]desert.Result, error) {
	h, err := s.holder.Current()
	if err != nil {
		return nil, err
	}
	return desert.Scan(h.Corpus(), specialty, classifier.DefaultRules.Regions...), nil
}

// ValidateFacility resolves identifier to a record and validates it.
func (s *Service) ValidateFacility(identifier string) (models.ValidationFinding, error) {
	h, err := s.holder.Current()
	if err != nil {
		return models.ValidationFinding{}, err
	}
	rec, _, err := h.Corpus().ResolveName(identifier, s.agentOpts.MinNameSimilarity)
	if err != nil {
		return models.ValidationFinding{}, err
	}
	return s.validator.Validate(&rec), nil
}

// Search returns the k most similar records to query. Embedding the query
// is bounded by the embedding timeout.
func (s *Service) Search(ctx context.Context, query string, k int) ([]index.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.agentOpts.EmbeddingTimeout)
	defer cancel()
	return s.holder.Search(ctx, query, k)
}

// Rebuild loads rows as a new corpus and swaps in an index built over it.
// On any failure the previous index keeps serving.
func (s *Service) Rebuild(ctx context.Context, rows []corpus.Row) (*index.Handle, error) {
	start := time.Now()
	c, err := corpus.Load(rows)
	if err != nil {
		s.metrics.ObserveRebuild(false, 0)
		return nil, fmt.Errorf("%w: %w", errs.ErrIndexBuild, err)
	}
	h, err := s.holder.Rebuild(ctx, c)
	if err != nil {
		s.metrics.ObserveRebuild(false, 0)
		return nil, err
	}
	s.metrics.ObserveRebuild(true, h.Len())
	logger.Info("index %s ready in %s", h.Version(), time.Since(start).Round(time.Millisecond))
	return h, nil
}

// RebuildFile reads a JSON or YAML rows file and rebuilds from it.
func (s *Service) RebuildFile(ctx context.Context, path string) (*index.Handle, error) {
	rows, err := corpus.ReadFile(path)
	if err != nil {
		s.metrics.ObserveRebuild(false, 0)
		return nil, err
	}
	return s.Rebuild(ctx, rows)
}

// Version is the live index version, or "" before the first build.
func (s *Service) Version() string {
	h, err := s.holder.Current()
	if err != nil {
		return ""
	}
	return h.Version()
}

// Current exposes the live index handle.
func (s *Service) Current() (*index.Handle, error) {
	return s.holder.Current()
}

func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Close(); err != nil {
		return fmt.Errorf("close embedding cache: %w", err)
	}
	return nil
}

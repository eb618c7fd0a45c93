package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		add("llm.base_url", "Ollama base URL is required")
	} else if !validHTTPURL(c.LLM.BaseURL) {
		add("llm.base_url", "invalid Ollama base URL")
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		add("llm.max_tokens", "max_tokens must be between 1 and 8192")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		add("llm.temperature", "temperature must be between 0 and 1")
	}
	if c.LLM.RateLimit < 0 {
		add("llm.rate_limit", "rate_limit cannot be negative")
	}

	// Validate embedding config
	switch c.Embedding.Type {
	case "tfidf", "ollama":
	default:
		add("embedding.type", fmt.Sprintf("unknown embedding type %q (want tfidf or ollama)", c.Embedding.Type))
	}
	switch c.Embedding.Cache {
	case "none", "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			add("embedding.cache", "postgres cache requires database.url")
		}
	default:
		add("embedding.cache", fmt.Sprintf("unknown cache %q (want none, sqlite or postgres)", c.Embedding.Cache))
	}
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size", "batch_size must be positive")
	}
	if c.Embedding.Concurrency < 1 {
		add("embedding.concurrency", "concurrency must be positive")
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			add("database.url", "invalid database URL")
		}
	}
	if c.Database.VectorDim < 0 {
		add("database.vector_dim", "vector_dim cannot be negative")
	}
	if c.Database.BatchSize < 1 {
		add("database.batch_size", "batch_size must be positive")
	}

	// Validate pipeline config
	if c.Pipeline.TopK < 1 {
		add("pipeline.top_k", "top_k must be positive")
	}
	if c.Pipeline.MinNameSimilarity <= 0 || c.Pipeline.MinNameSimilarity > 1 {
		add("pipeline.min_name_similarity", "min_name_similarity must be in (0, 1]")
	}
	if c.Pipeline.GenerationTimeout <= 0 {
		add("pipeline.generation_timeout", "generation_timeout must be positive")
	}

	// Validate plausibility bounds
	if c.Validation.MaxDoctors < 1 {
		add("validation.max_doctors", "max_doctors must be positive")
	}
	if c.Validation.MaxBeds < 1 {
		add("validation.max_beds", "max_beds must be positive")
	}
	if c.Validation.MaxSpecialties < 1 {
		add("validation.max_specialties", "max_specialties must be positive")
	}
	if c.Validation.MinYear > c.Validation.MaxYear {
		add("validation.min_year", "min_year must not exceed max_year")
	}

	if c.Server.Addr == "" {
		add("server.addr", "listen address is required")
	}

	return errors
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

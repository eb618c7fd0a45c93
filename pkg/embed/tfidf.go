// Package embed provides the local TF-IDF embedder and a persistent cache
// wrapper for remote embedders.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/processor"
)

var ErrNotFitted = errors.New("tfidf embedder not fitted")

// TFIDF is an unfitted TF-IDF vectorizer. Fit learns a vocabulary from the
// corpus profiles and returns a FittedTFIDF; TFIDF itself cannot embed.
type TFIDF struct {
	proc processor.Processor
}

// NewTFIDF returns a vectorizer that drops stopwords.
func NewTFIDF() *TFIDF {
	return NewTFIDFWithConfig(processor.ProcessorConfig{RemoveStopwords: true})
}

// NewTFIDFWithConfig tokenizes with the given processor settings.
func NewTFIDFWithConfig(config processor.ProcessorConfig) *TFIDF {
	return &TFIDF{proc: processor.NewWithConfig(config)}
}

func (e *TFIDF) Name() string { return "tfidf" }

func (e *TFIDF) Embed(context.Context, []string) ([][]float32, error) {
	return nil, ErrNotFitted
}

// Fit builds a sorted vocabulary and smoothed IDF weights
// log((1+N)/(1+df))+1 over the profiles.
func (e *TFIDF) Fit(ctx context.Context, profiles []string) (types.Embedder, error) {
	if len(profiles) == 0 {
		return nil, errors.New("empty corpus for TF-IDF fit")
	}
	df := make(map[string]int)
	for _, text := range profiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen := make(map[string]struct{})
		for _, tok := range e.proc.Tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return nil, errors.New("no tokens found in corpus")
	}
	sort.Strings(terms)

	f := &FittedTFIDF{
		proc:       e.proc,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(profiles))
	for i, term := range terms {
		f.vocabulary[term] = i
		f.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	sum := sha256.Sum256([]byte(strings.Join(terms, "\x00")))
	f.name = "tfidf:" + hex.EncodeToString(sum[:6])
	return f, nil
}

// FittedTFIDF is immutable and safe for concurrent use.
type FittedTFIDF struct {
	name       string
	proc       processor.Processor
	vocabulary map[string]int
	idf        []float64
}

// Name identifies the vocabulary, so vectors from different fits never share a cache key.
func (f *FittedTFIDF) Name() string { return f.name }

func (f *FittedTFIDF) Dimension() int { return len(f.idf) }

func (f *FittedTFIDF) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tfidf embed: %w", err)
		}
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *FittedTFIDF) vector(text string) []float32 {
	vec := make([]float32, len(f.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range f.proc.Tokenize(text) {
		if idx, ok := f.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}

	weights := make([]float64, len(f.idf))
	norm := 0.0
	for idx, count := range tf {
		w := float64(count) / float64(total) * f.idf[idx]
		weights[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for idx := range tf {
		vec[idx] = float32(weights[idx] / norm)
	}
	return vec
}

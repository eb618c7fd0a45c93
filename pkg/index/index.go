// Package index builds immutable embedding indexes over a corpus snapshot
// and serves exact nearest-neighbour search against them.
package index

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/corpus"
	"github.com/xhad/carescope/pkg/processor"
)

type Options struct {
	BatchSize   int
	Concurrency int
	Processor   processor.ProcessorConfig
	// OnProgress is called after each batch with the number of embedded rows.
	OnProgress func(done, total int)
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Handle is one built index version. It is never modified after Build
// returns, so any number of queries may share it.
type Handle struct {
	corpus   *corpus.Corpus
	embedder types.Embedder
	profiles []string
	vectors  [][]float32
	dim      int
}

// Build renders a profile for every record, fits the embedder if it learns
// from the corpus, and embeds all profiles in concurrent batches. Vector i
// belongs to row id i.
func Build(ctx context.Context, c *corpus.Corpus, embedder types.Embedder, opts Options) (*Handle, error) {
	if c == nil || c.Len() == 0 {
		return nil, fmt.Errorf("%w: corpus is empty", errs.ErrIndexBuild)
	}
	opts = opts.withDefaults()
	start := time.Now()

	proc := processor.NewWithConfig(opts.Processor)
	records := c.Records()
	profiles := make([]string, len(records))
	for i := range records {
		profiles[records[i].RowID] = proc.Profile(&records[i])
	}

	if fitter, ok := embedder.(types.CorpusFitter); ok {
		fitted, err := fitter.Fit(ctx, profiles)
		if err != nil {
			return nil, fmt.Errorf("%w: fit %s: %v", errs.ErrIndexBuild, embedder.Name(), err)
		}
		embedder = fitted
	}

	vectors := make([][]float32, len(profiles))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for lo := 0; lo < len(profiles); lo += opts.BatchSize {
		lo, hi := lo, min(lo+opts.BatchSize, len(profiles))
		g.Go(func() error {
			batch, err := embedder.Embed(gctx, profiles[lo:hi])
			if err != nil {
				return fmt.Errorf("embed rows %d-%d: %w", lo, hi-1, err)
			}
			if len(batch) != hi-lo {
				return fmt.Errorf("embed rows %d-%d: got %d vectors", lo, hi-1, len(batch))
			}
			for j, v := range batch {
				vectors[lo+j] = normalize(v)
			}
			mu.Lock()
			done += hi - lo
			if opts.OnProgress != nil {
				opts.OnProgress(done, len(profiles))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrIndexBuild, errs.Classify(ctx, err, errs.ErrEmbedding))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: embedder %s returned empty vectors", errs.ErrIndexBuild, embedder.Name())
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has dimension %d, want %d", errs.ErrIndexBuild, i, len(v), dim)
		}
	}

	logger.Info("built index over %d rows with %s (dim %d) in %s",
		len(vectors), embedder.Name(), dim, time.Since(start).Round(time.Millisecond))

	return &Handle{
		corpus:   c,
		embedder: embedder,
		profiles: profiles,
		vectors:  vectors,
		dim:      dim,
	}, nil
}

func (h *Handle) Corpus() *corpus.Corpus { return h.corpus }

func (h *Handle) Len() int { return len(h.vectors) }

func (h *Handle) Dimension() int { return h.dim }

// Version combines the corpus fingerprint with the embedder identity.
func (h *Handle) Version() string {
	return h.corpus.Version()[:12] + "/" + h.embedder.Name()
}

// Profile returns the text that was embedded for rowID.
func (h *Handle) Profile(rowID int) string {
	if rowID < 0 || rowID >= len(h.profiles) {
		return ""
	}
	return h.profiles[rowID]
}

// normalize returns v scaled to unit length. A zero vector stays zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

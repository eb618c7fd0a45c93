package index

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/corpus"
)

// Holder publishes the current index version. Readers take a snapshot with
// Current and keep using it for the whole query; Rebuild swaps in a new
// version only after it is fully built.
type Holder struct {
	current  atomic.Pointer[Handle]
	rebuild  sync.Mutex
	embedder types.Embedder
	opts     Options
}

func NewHolder(embedder types.Embedder, opts Options) *Holder {
	return &Holder{embedder: embedder, opts: opts}
}

// Current returns the live handle or errs.ErrEmptyIndex before the first
// successful build.
func (h *Holder) Current() (*Handle, error) {
	if cur := h.current.Load(); cur != nil {
		return cur, nil
	}
	return nil, errs.ErrEmptyIndex
}

// Rebuild builds an index for c and swaps it in. On failure the previous
// handle keeps serving and the error is returned. Concurrent rebuilds are
// serialized; queries are never blocked.
func (h *Holder) Rebuild(ctx context.Context, c *corpus.Corpus) (*Handle, error) {
	h.rebuild.Lock()
	defer h.rebuild.Unlock()

	next, err := Build(ctx, c, h.embedder, h.opts)
	if err != nil {
		logger.Warn("index rebuild failed, keeping previous version: %v", err)
		return nil, err
	}
	prev := h.current.Swap(next)
	if prev != nil {
		logger.Info("index swapped %s -> %s", prev.Version(), next.Version())
	}
	return next, nil
}

// Search runs against the current handle.
func (h *Holder) Search(ctx context.Context, query string, k int) ([]Result, error) {
	cur, err := h.Current()
	if err != nil {
		return nil, err
	}
	return cur.Search(ctx, query, k)
}

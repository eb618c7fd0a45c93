package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/models"
)

type Result struct {
	RowID  int                   `json:"row_id"`
	Score  float64               `json:"relevance_score"`
	Record models.FacilityRecord `json:"record"`
}

// Search embeds query with the handle's embedder and returns up to k
// results ordered by descending score, ties by ascending row id.
//
// Score is 1/(1+d) where d is the Euclidean distance between the unit
// query vector and the unit row vector, so it lies in [1/3, 1].
func (h *Handle) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if h == nil || len(h.vectors) == 0 {
		return nil, errs.ErrEmptyIndex
	}
	if k <= 0 {
		return []Result{}, nil
	}

	vecs, err := h.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", errs.Classify(ctx, err, errs.ErrEmbedding))
	}
	if len(vecs) != 1 || len(vecs[0]) != h.dim {
		return nil, fmt.Errorf("%w: query vector has wrong shape", errs.ErrEmbedding)
	}
	return h.SearchVector(vecs[0], k), nil
}

// SearchVector ranks rows against an already embedded query.
func (h *Handle) SearchVector(query []float32, k int) []Result {
	if k <= 0 || len(query) != h.dim {
		return []Result{}
	}
	q := normalize(query)

	type scored struct {
		row   int
		score float64
	}
	all := make([]scored, len(h.vectors))
	for i, v := range h.vectors {
		all[i] = scored{row: i, score: Score(q, v)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].row < all[j].row
	})

	if k > len(all) {
		k = len(all)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		rec, _ := h.corpus.Record(all[i].row)
		rec.ProfileText = h.profiles[all[i].row]
		out[i] = Result{RowID: all[i].row, Score: all[i].score, Record: rec}
	}
	return out
}

// Score maps the Euclidean distance between two vectors to 1/(1+d).
func Score(a, b []float32) float64 {
	var d float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		d += diff * diff
	}
	return 1 / (1 + math.Sqrt(d))
}

// Citations returns one citation per result, in result order.
func Citations(results []Result) []models.Citation {
	out := make([]models.Citation, len(results))
	for i := range results {
		out[i] = models.CiteRecord(&results[i].Record)
	}
	return out
}

package service_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/fixtures"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/agent"
	"github.com/xhad/carescope/pkg/config"
	"github.com/xhad/carescope/pkg/corpus"
	"github.com/xhad/carescope/pkg/embed"
	"github.com/xhad/carescope/pkg/metrics"
	"github.com/xhad/carescope/pkg/service"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _ string, p types.Payload) (string, error) {
	var parts []string
	for _, c := range p.Citations {
		parts = append(parts, c.String())
	}
	return "Answer citing " + strings.Join(parts, "; "), nil
}

type streamingGenerator struct {
	echoGenerator
}

func (g streamingGenerator) Streaming(onChunk func(string)) types.Generator {
	return chunked{onChunk: onChunk}
}

type chunked struct {
	onChunk func(string)
}

func (c chunked) Generate(_ context.Context, _ string, _ types.Payload) (string, error) {
	for _, s := range []string{"Row ", "7"} {
		c.onChunk(s)
	}
	return "Row 7", nil
}

func newService(t *testing.T, gen types.Generator) (*service.Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	s := service.New(service.Options{
		Embedder:  embed.NewTFIDF(),
		Generator: gen,
		Metrics:   m,
	})
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, m
}

func rebuilt(t *testing.T, gen types.Generator) (*service.Service, *metrics.Metrics) {
	t.Helper()
	s, m := newService(t, gen)
	h, err := s.Rebuild(context.Background(), fixtures.Rows())
	require.NoError(t, err)
	require.Equal(t, len(fixtures.Rows()), h.Len())
	return s, m
}

func TestService_BeforeBuild(t *testing.T) {
	s, _ := newService(t, echoGenerator{})

	assert.Empty(t, s.Version())

	_, err := s.DetectDesert("cardiology", "Northern")
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)

	_, err = s.ValidateFacility("Tamale Teaching Hospital")
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)

	_, err = s.Search(context.Background(), "cardiology", 3)
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)

	_, err = s.Coverage("cardiology")
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)
}

func TestService_DetectDesert(t *testing.T) {
	s, _ := rebuilt(t, echoGenerator{})

	res, err := s.DetectDesert("cardiology", "Northern")
	require.NoError(t, err)
	assert.Equal(t, models.SeveritySevere, res.Severity)
	assert.Equal(t, []int{7, 8}, res.MatchingRowIDs)

	res, err = s.DetectDesert("cardiology", "Volta")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, res.Severity)
	assert.Empty(t, res.Citations)

	coverage, err := s.Coverage("cardiology")
	require.NoError(t, err)
	require.NotEmpty(t, coverage)
	assert.Equal(t, models.SeverityCritical, coverage[0].Severity)
}

func TestService_ValidateFacility(t *testing.T) {
	s, _ := rebuilt(t, echoGenerator{})

	f, err := s.ValidateFacility("Tamale Teaching Hospital")
	require.NoError(t, err)
	assert.Equal(t, 7, f.RowID)
	require.Len(t, f.SuspiciousClaims, 1)
	assert.Equal(t, models.ClaimDoctorCount, f.SuspiciousClaims[0].Field)

	_, err = s.ValidateFacility("Nonexistent Eye Institute")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_Search(t *testing.T) {
	s, _ := rebuilt(t, echoGenerator{})

	results, err := s.Search(context.Background(), "cardiology hospital Tamale", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	results, err = s.Search(context.Background(), "cardiology", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// slowQueryEmbedder embeds profiles immediately but blocks on "slow" until
// the context ends.
type slowQueryEmbedder struct{}

func (slowQueryEmbedder) Name() string { return "slow" }

func (slowQueryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestService_SearchEmbeddingTimeout(t *testing.T) {
	s := service.New(service.Options{
		Embedder:  slowQueryEmbedder{},
		Generator: echoGenerator{},
		Agent:     agent.Options{EmbeddingTimeout: 50 * time.Millisecond},
	})
	defer s.Close()
	_, err := s.Rebuild(context.Background(), fixtures.Rows())
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Search(context.Background(), "slow", 3)
	assert.ErrorIs(t, err, errs.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	results, err := s.Search(context.Background(), "cardiology", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestService_Process(t *testing.T) {
	s, m := rebuilt(t, echoGenerator{})

	res, err := s.Process(context.Background(), "Is there a lack of cardiology in Northern?", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, res.State)
	assert.Equal(t, models.IntentDesertDetection, res.Intent)
	assert.Contains(t, res.Answer, "Row 7")
	assert.Equal(t, s.Version(), res.IndexVersion)

	n, err := testutil.GatherAndCount(m.Registry(), "carescope_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_ProcessStream(t *testing.T) {
	s, _ := rebuilt(t, streamingGenerator{})

	var chunks []string
	res, err := s.ProcessStream(context.Background(), "Validate Tamale Teaching Hospital", nil,
		func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Row ", "7"}, chunks)
	assert.Equal(t, "Row 7", res.Answer)

	// A generator without streaming delivers the answer once.
	plain, _ := rebuilt(t, echoGenerator{})
	chunks = nil
	res, err = plain.ProcessStream(context.Background(), "Validate Tamale Teaching Hospital", nil,
		func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Equal(t, []string{res.Answer}, chunks)
}

func TestService_FailedRebuildKeepsServing(t *testing.T) {
	s, m := rebuilt(t, echoGenerator{})
	version := s.Version()
	require.NotEmpty(t, version)

	_, err := s.Rebuild(context.Background(), []corpus.Row{{"city": "Ho"}})
	assert.ErrorIs(t, err, errs.ErrIndexBuild)
	assert.ErrorIs(t, err, errs.ErrSchema)
	assert.Equal(t, version, s.Version())

	res, err := s.DetectDesert("cardiology", "Northern")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	expected := `
# HELP carescope_index_rebuilds_total Index rebuild attempts by outcome.
# TYPE carescope_index_rebuilds_total counter
carescope_index_rebuilds_total{status="error"} 1
carescope_index_rebuilds_total{status="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"carescope_index_rebuilds_total"))
}

func TestService_RebuildFile(t *testing.T) {
	s, _ := newService(t, echoGenerator{})

	data, err := json.Marshal(fixtures.Rows())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ghana.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	h, err := s.RebuildFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, h.Version(), s.Version())

	_, err = s.RebuildFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Equal(t, h.Version(), s.Version())
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Type = "ollama"
	cfg.Embedding.Cache = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "cache", "embeddings.db")
	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.LLM.Temperature = 0.2
	cfg.Pipeline.TopK = 3

	s, err := service.NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.Metrics())
	assert.FileExists(t, cfg.Database.SQLitePath)
	assert.NoError(t, s.Close())

	cfg.Embedding.Type = "tfidf"
	s, err = service.NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, err = s.Rebuild(context.Background(), fixtures.Rows())
	require.NoError(t, err)
	assert.NotEmpty(t, s.Version())
	assert.NoError(t, s.Close())
}

func TestNewFromConfig_KeepStopwords(t *testing.T) {
	rows := []corpus.Row{
		{"name": "Ho Clinic", "region": "Volta", "description": "the clinic of the east"},
		{"name": "Wa Hospital", "region": "Upper West", "description": "a hospital in the north"},
	}
	version := func(keep bool) string {
		cfg := &config.Config{}
		cfg.Embedding.Type = "tfidf"
		cfg.Embedding.Cache = "none"
		cfg.Processor.KeepStopwords = keep
		s, err := service.NewFromConfig(context.Background(), cfg, nil)
		require.NoError(t, err)
		defer s.Close()
		_, err = s.Rebuild(context.Background(), rows)
		require.NoError(t, err)
		return s.Version()
	}

	assert.NotEqual(t, version(false), version(true))
	assert.Equal(t, version(true), version(true))
}

func TestService_WatchRebuildsOnChange(t *testing.T) {
	s, _ := newService(t, echoGenerator{})

	path := filepath.Join(t.TempDir(), "facilities.json")
	writeRows := func(rows []corpus.Row) {
		data, err := json.Marshal(rows)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0644))
	}
	writeRows(fixtures.Rows())
	_, err := s.RebuildFile(context.Background(), path)
	require.NoError(t, err)
	first := s.Version()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, path, 20*time.Millisecond) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeRows(fixtures.Rows()[:4])

	assert.Eventually(t, func() bool {
		return s.Version() != first
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

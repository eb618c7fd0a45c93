package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/fixtures"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/agent"
	"github.com/xhad/carescope/pkg/embed"
	"github.com/xhad/carescope/pkg/index"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, payload types.Payload) (string, error) {
	args := m.Called(ctx, prompt, payload)
	return args.String(0), args.Error(1)
}

type recorder struct {
	mu      sync.Mutex
	stages  []string
	queries []string
}

func (r *recorder) ObserveStage(stage string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) ObserveQuery(intent, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, intent+"/"+state)
}

func builtHolder(t *testing.T) *index.Holder {
	t.Helper()
	h := index.NewHolder(embed.NewTFIDF(), index.Options{})
	_, err := h.Rebuild(context.Background(), fixtures.Corpus(t))
	require.NoError(t, err)
	return h
}

func stepNames(steps []models.AgentStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func TestProcess_DesertQuery(t *testing.T) {
	gen := new(mockGenerator)
	var sent types.Payload
	gen.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(p types.Payload) bool {
		sent = p
		return true
	})).Return("Northern is a severe cardiology desert (Row 7, Row 8).", nil).Once()

	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})
	res, err := a.Process(context.Background(), "Is there a lack of cardiology in Northern?", nil)
	require.NoError(t, err)

	assert.Equal(t, agent.StateDone, res.State)
	assert.Equal(t, models.IntentDesertDetection, res.Intent)
	assert.NotEmpty(t, res.QueryID)
	assert.NotEmpty(t, res.IndexVersion)
	assert.Equal(t, []string{
		agent.StepClassification, agent.StepRetrieval, agent.StepDesert, agent.StepGeneration,
	}, stepNames(res.Trace))

	assert.Empty(t, res.Trace[0].Citations)
	assert.Len(t, res.Trace[1].Citations, 5)

	require.NotNil(t, res.Analysis)
	require.NotNil(t, res.Analysis.Desert)
	assert.Equal(t, models.SeveritySevere, res.Analysis.Desert.Severity)
	assert.Equal(t, []models.Citation{
		{RowID: 7, SourceURL: "https://example.org/facilities/tamale-teaching"},
		{RowID: 8},
	}, res.Trace[2].Citations)

	// synthesis only reuses citations committed earlier
	assert.Equal(t, res.FinalCitations, res.Trace[3].Citations)
	assert.Equal(t, res.FinalCitations, sent.Citations)
	assert.Len(t, sent.Context, 5)
	assert.Len(t, sent.Steps, 3)
	assert.Equal(t, "Northern is a severe cardiology desert (Row 7, Row 8).", res.Answer)
	gen.AssertExpectations(t)
}

func TestProcess_DesertWithoutMatches(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("none in Volta", nil)

	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})
	res, err := a.Process(context.Background(), "Is there a gap in cardiology coverage in Volta?", nil)
	require.NoError(t, err)

	require.NotNil(t, res.Analysis.Desert)
	assert.Equal(t, models.SeverityCritical, res.Analysis.Desert.Severity)
	assert.Empty(t, res.Trace[2].Citations)
}

func TestProcess_DesertScanWithoutRegion(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("scan", nil)

	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})
	res, err := a.Process(context.Background(), "Is there a shortage of cardiology?", nil)
	require.NoError(t, err)

	require.NotNil(t, res.Analysis)
	assert.Nil(t, res.Analysis.Desert)
	assert.Len(t, res.Analysis.Coverage, 16)
	assert.Equal(t, models.SeverityCritical, res.Analysis.Coverage[0].Severity)
	assert.NotEmpty(t, res.Analysis.Note)

	var rows []int
	for _, c := range res.Trace[2].Citations {
		rows = append(rows, c.RowID)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 7, 8, 10}, rows)
}

func TestProcess_DesertWithoutSpecialtyFallsBack(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("summary", nil)

	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})
	res, err := a.Process(context.Background(), "Where are the gaps in Northern?", nil)
	require.NoError(t, err)

	assert.Equal(t, models.IntentDesertDetection, res.Intent)
	assert.Equal(t, agent.StepSynthesis, res.Trace[2].Name)
	require.NotNil(t, res.Analysis.Summary)
	assert.NotEmpty(t, res.Analysis.Note)
}

func TestProcess_Validation(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("doctor count is implausible", nil)

	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})
	res, err := a.Process(context.Background(), "Validate Tamale Teaching Hospital", nil)
	require.NoError(t, err)

	assert.Equal(t, models.IntentValidation, res.Intent)
	assert.Equal(t, agent.StepValidation, res.Trace[2].Name)
	require.NotNil(t, res.Analysis.Validation)
	finding := res.Analysis.Validation
	assert.Equal(t, 7, finding.RowID)
	require.Len(t, finding.SuspiciousClaims, 1)
	assert.Equal(t, models.ClaimDoctorCount, finding.SuspiciousClaims[0].Field)
	assert.Equal(t, []models.Citation{*finding.Citation}, res.Trace[2].Citations)
}

func TestProcess_HintOverridesClassification(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil)
	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})

	hint := models.IntentValidation
	res, err := a.Process(context.Background(), "Korle Bu Teaching Hospital", &hint)
	require.NoError(t, err)
	assert.Equal(t, models.IntentValidation, res.Intent)
	assert.Equal(t, "hint", res.Classification.Rule)
	require.NotNil(t, res.Analysis.Validation)
	assert.Equal(t, 0, res.Analysis.Validation.RowID)

	bogus := models.Intent("astrology")
	res, err = a.Process(context.Background(), "Korle Bu Teaching Hospital", &bogus)
	require.NoError(t, err)
	assert.Equal(t, models.IntentGeneral, res.Intent)
}

func TestProcess_ValidationNotFoundIsNotAnError(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("not in the dataset", nil)
	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})

	hint := models.IntentValidation
	res, err := a.Process(context.Background(), "please validate Mystery Clinic", &hint)
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, res.State)
	assert.Nil(t, res.Analysis.Validation)
	assert.Contains(t, res.Analysis.Note, "no facility matched")
	assert.Empty(t, res.Trace[2].Citations)
}

func TestProcess_SearchAggregates(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Komfo Anokye (Row 10)", nil)
	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{TopK: 3})

	res, err := a.Process(context.Background(), "Find eye clinics in Ashanti", nil)
	require.NoError(t, err)
	assert.Equal(t, models.IntentSearch, res.Intent)
	assert.Equal(t, agent.StepSynthesis, res.Trace[2].Name)
	assert.Equal(t, res.Trace[1].Citations, res.Trace[2].Citations)

	s := res.Analysis.Summary
	require.NotNil(t, s)
	assert.Equal(t, 3, s.Facilities)
	assert.Len(t, s.Matches, 3)
	assert.Equal(t, 1, s.Matches[0].Rank)
}

func TestProcess_GenerationFailureKeepsAnalysis(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection refused"))
	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{})

	res, err := a.Process(context.Background(), "Is there a lack of cardiology in Northern?", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)

	var se *agent.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, agent.StateSynthesizing, se.Stage)
	assert.Equal(t, res.QueryID, se.QueryID)

	assert.Equal(t, agent.StateFailed, res.State)
	assert.Len(t, res.Trace, 3)
	require.NotNil(t, res.Analysis.Desert)
	assert.Equal(t, models.SeveritySevere, res.Analysis.Desert.Severity)
	assert.Empty(t, res.Answer)
}

func TestProcess_GenerationTimeout(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{GenerationTimeout: 20 * time.Millisecond})
	res, err := a.Process(context.Background(), "Find cardiology in Tamale", nil)
	assert.ErrorIs(t, err, errs.ErrTimeout)
	assert.Equal(t, agent.StateFailed, res.State)
	assert.Len(t, res.Trace, 3)
}

func TestProcess_NilGenerator(t *testing.T) {
	a := agent.New(builtHolder(t), nil, nil, nil, agent.Options{})
	res, err := a.Process(context.Background(), "Find cardiology in Tamale", nil)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.NotNil(t, res.Analysis)
}

func TestProcess_BeforeIndexBuild(t *testing.T) {
	holder := index.NewHolder(embed.NewTFIDF(), index.Options{})
	a := agent.New(holder, new(mockGenerator), nil, nil, agent.Options{})

	res, err := a.Process(context.Background(), "Find cardiology", nil)
	assert.ErrorIs(t, err, errs.ErrEmptyIndex)

	var se *agent.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, agent.StateRetrieving, se.Stage)
	assert.Equal(t, []string{agent.StepClassification}, stepNames(res.Trace))
	assert.Nil(t, res.Analysis)
}

func TestProcess_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := agent.New(builtHolder(t), new(mockGenerator), nil, nil, agent.Options{})
	res, err := a.Process(ctx, "Find cardiology", nil)
	assert.ErrorIs(t, err, errs.ErrCancelled)
	assert.Equal(t, agent.StateFailed, res.State)
	assert.Empty(t, res.Trace)
}

func TestProcess_ObserverAndConcurrency(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil)
	obs := &recorder{}
	a := agent.New(builtHolder(t), gen, nil, nil, agent.Options{Observer: obs})

	queries := []string{
		"Is there a lack of cardiology in Northern?",
		"Validate Tamale Teaching Hospital",
		"Find eye clinics in Ashanti",
		"Tell me about healthcare",
	}
	var wg sync.WaitGroup
	results := make([]*agent.Result, len(queries))
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			res, err := a.Process(context.Background(), q, nil)
			assert.NoError(t, err)
			results[i] = res
		}(i, q)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, agent.StateDone, res.State)
		assert.Len(t, res.Trace, 4)
	}
	assert.Len(t, obs.stages, 4*len(queries))
	assert.Len(t, obs.queries, len(queries))
	assert.Contains(t, obs.queries, "validation/done")
}

func TestTransition(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		from agent.State
		err  error
		want agent.State
	}{
		{agent.StateClassifying, nil, agent.StateRetrieving},
		{agent.StateRetrieving, nil, agent.StateAnalyzing},
		{agent.StateAnalyzing, nil, agent.StateSynthesizing},
		{agent.StateSynthesizing, nil, agent.StateDone},
		{agent.StateClassifying, boom, agent.StateFailed},
		{agent.StateRetrieving, boom, agent.StateFailed},
		{agent.StateAnalyzing, boom, agent.StateFailed},
		{agent.StateSynthesizing, boom, agent.StateFailed},
		{agent.StateDone, boom, agent.StateDone},
		{agent.StateFailed, nil, agent.StateFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, agent.Transition(tt.from, tt.err), "%s err=%v", tt.from, tt.err)
	}
	assert.Equal(t, "synthesizing", agent.StateSynthesizing.String())
}

// Package agent runs a query through the pipeline state machine:
// classify, retrieve, analyze, synthesize. Every stage commits one step to a
// citation trace, and a failed query still returns the trace and analysis
// gathered up to the failure.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/internal/types"
	"github.com/xhad/carescope/pkg/citation"
	"github.com/xhad/carescope/pkg/classifier"
	"github.com/xhad/carescope/pkg/corpus"
	"github.com/xhad/carescope/pkg/desert"
	"github.com/xhad/carescope/pkg/index"
	"github.com/xhad/carescope/pkg/validator"
)

// Step names recorded in the trace.
const (
	StepClassification = "query_classification"
	StepRetrieval      = "context_retrieval"
	StepDesert         = "desert_analysis"
	StepValidation     = "facility_validation"
	StepSynthesis      = "information_synthesis"
	StepGeneration     = "response_generation"
)

// IndexSource hands out the index version a query runs against.
// *index.Holder implements it.
type IndexSource interface {
	Current() (*index.Handle, error)
}

// Observer receives stage and query outcomes. *metrics.Metrics implements it.
type Observer interface {
	ObserveStage(stage string, success bool, d time.Duration)
	ObserveQuery(intent, state string)
}

type Options struct {
	TopK              int
	MinNameSimilarity float64
	EmbeddingTimeout  time.Duration
	GenerationTimeout time.Duration
	MaxContextChars   int
	// Regions are scanned in addition to corpus regions when a desert
	// query names a specialty but no region.
	Regions  []string
	Observer Observer
}

// WithDefaults fills every unset option.
func (o Options) WithDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MinNameSimilarity <= 0 {
		o.MinNameSimilarity = 0.75
	}
	if o.EmbeddingTimeout <= 0 {
		o.EmbeddingTimeout = 30 * time.Second
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = 2 * time.Minute
	}
	if o.MaxContextChars == 0 {
		o.MaxContextChars = 8000
	}
	if o.Regions == nil {
		o.Regions = classifier.DefaultRules.Regions
	}
	return o
}

type Agent struct {
	source     IndexSource
	generator  types.Generator
	classifier *classifier.Classifier
	validator  *validator.Validator
	opts       Options
}

// New wires an agent. A nil classifier or validator selects the defaults.
func New(source IndexSource, generator types.Generator, cl *classifier.Classifier, v *validator.Validator, opts Options) *Agent {
	if cl == nil {
		cl = classifier.Default()
	}
	if v == nil {
		v = validator.New(validator.Rules())
	}
	return &Agent{
		source:     source,
		generator:  generator,
		classifier: cl,
		validator:  v,
		opts:       opts.WithDefaults(),
	}
}

// Analysis holds whichever analytics the intent selected.
type Analysis struct {
	Desert     *desert.Result            `json:"desert,omitempty"`
	Coverage   []desert.Result           `json:"coverage,omitempty"`
	Validation *models.ValidationFinding `json:"validation,omitempty"`
	Summary    *Summary                  `json:"summary,omitempty"`
	Note       string                    `json:"note,omitempty"`
}

type Result struct {
	QueryID        string                    `json:"query_id"`
	Query          string                    `json:"query"`
	Intent         models.Intent             `json:"intent"`
	Classification classifier.Classification `json:"classification"`
	State          State                     `json:"state"`
	Answer         string                    `json:"answer"`
	Trace          []models.AgentStep        `json:"trace"`
	FinalCitations []models.Citation         `json:"final_citations"`
	Analysis       *Analysis                 `json:"analysis,omitempty"`
	IndexVersion   string                    `json:"index_version,omitempty"`
}

// run is the per-query state. It is never shared between queries.
type run struct {
	*Agent
	query   string
	hint    *models.Intent
	handle  *index.Handle
	herr    error
	tracker *citation.Tracker
	res     *Result
	context []index.Result
}

// Process answers query. hint, when non-nil and valid, replaces the
// classified intent. On failure the returned Result is still populated with
// the partial trace and any analysis, and the error is a *StageError.
func (a *Agent) Process(ctx context.Context, query string, hint *models.Intent) (*Result, error) {
	r := &run{
		Agent:   a,
		query:   query,
		hint:    hint,
		tracker: citation.NewTracker(),
		res: &Result{
			QueryID: uuid.NewString(),
			Query:   query,
			State:   StateClassifying,
		},
	}
	r.handle, r.herr = a.source.Current()
	if r.handle != nil {
		r.res.IndexVersion = r.handle.Version()
	}

	logger.Section("query " + r.res.QueryID)
	logger.Debug("query: %q", query)

	var failure error
	state := StateClassifying
	for !state.Terminal() {
		err := ctx.Err()
		if err != nil {
			err = errs.Classify(ctx, err, errs.ErrCancelled)
		} else {
			start := time.Now()
			err = r.stage(ctx, state)
			a.observeStage(state, err == nil, time.Since(start))
		}

		next := Transition(state, err)
		if next == StateFailed {
			failure = &StageError{QueryID: r.res.QueryID, Stage: state, Err: err}
			logger.Warn("%v", failure)
		} else {
			logger.Debug("%s -> %s", state, next)
		}
		state = next
	}

	r.res.State = state
	r.res.Trace = r.tracker.Steps()
	r.res.FinalCitations = r.tracker.Citations()
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveQuery(string(r.res.Intent), state.String())
	}
	return r.res, failure
}

func (a *Agent) observeStage(s State, ok bool, d time.Duration) {
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveStage(s.String(), ok, d)
	}
}

func (r *run) stage(ctx context.Context, s State) error {
	switch s {
	case StateClassifying:
		return r.classify()
	case StateRetrieving:
		return r.retrieve(ctx)
	case StateAnalyzing:
		return r.analyze()
	case StateSynthesizing:
		return r.synthesize(ctx)
	}
	return fmt.Errorf("no stage for state %s", s)
}

func (r *run) corpus() *corpus.Corpus {
	if r.handle == nil {
		return nil
	}
	return r.handle.Corpus()
}

func (r *run) classify() error {
	cls := r.classifier.Classify(r.query, r.corpus())
	if r.hint != nil {
		if intent, ok := models.ParseIntent(string(*r.hint)); ok {
			cls.Intent, cls.Rule = intent, "hint"
		}
	}
	r.res.Classification = cls
	r.res.Intent = cls.Intent

	out := []string{"intent=" + string(cls.Intent)}
	for _, kv := range [][2]string{
		{"rule", cls.Rule}, {"specialty", cls.Specialty}, {"region", cls.Region}, {"facility", cls.Facility},
	} {
		if kv[1] != "" {
			out = append(out, kv[0]+"="+kv[1])
		}
	}
	r.tracker.Begin(StepClassification, r.query).Output("%s", strings.Join(out, " ")).Commit()
	return nil
}

func (r *run) retrieve(ctx context.Context) error {
	if r.herr != nil {
		return r.herr
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.EmbeddingTimeout)
	defer cancel()

	results, err := r.handle.Search(ctx, r.query, r.opts.TopK)
	if err != nil {
		return err
	}
	r.context = results

	rows := make([]string, len(results))
	for i, res := range results {
		rows[i] = fmt.Sprintf("%d", res.RowID)
	}
	r.tracker.Begin(StepRetrieval, r.query).
		CiteAll(index.Citations(results)).
		Output("retrieved %d facilities (rows %s)", len(results), strings.Join(rows, ", ")).
		Commit()
	return nil
}

func (r *run) analyze() error {
	cls := r.res.Classification
	switch r.res.Intent {
	case models.IntentDesertDetection:
		if cls.Specialty != "" {
			r.analyzeDesert(cls.Specialty, cls.Region)
			return nil
		}
		r.summarize("no known specialty named in the query, summarised the retrieved facilities instead")
	case models.IntentValidation:
		r.analyzeValidation(cls.Facility)
	default:
		r.summarize("")
	}
	return nil
}

func (r *run) analyzeDesert(specialty, region string) {
	c := r.corpus()
	if region != "" {
		res := desert.Detect(c, specialty, region)
		r.res.Analysis = &Analysis{Desert: &res}
		r.tracker.Begin(StepDesert, fmt.Sprintf("specialty=%s region=%s", specialty, region)).
			CiteAll(res.Citations).
			Output("%d %s facilities in %s: severity %s", res.Count, specialty, region, res.Severity).
			Commit()
		return
	}

	scan := desert.Scan(c, specialty, r.opts.Regions...)
	step := r.tracker.Begin(StepDesert, fmt.Sprintf("specialty=%s region=*", specialty))
	deserts := 0
	for _, res := range scan {
		step.CiteAll(res.Citations)
		if res.IsDesert {
			deserts++
		}
	}
	r.res.Analysis = &Analysis{
		Coverage: scan,
		Note:     "no region named in the query, scanned every known region",
	}
	step.Output("%d of %d regions are %s deserts", deserts, len(scan), specialty).Commit()
}

func (r *run) analyzeValidation(facility string) {
	identifier := facility
	if identifier == "" {
		identifier = strings.TrimSpace(r.query)
	}
	step := r.tracker.Begin(StepValidation, identifier)

	rec, score, err := r.corpus().ResolveName(identifier, r.opts.MinNameSimilarity)
	if err != nil {
		r.res.Analysis = &Analysis{Note: fmt.Sprintf("no facility matched %q", identifier)}
		step.Output("no facility matched %q (best similarity %.2f)", identifier, score).Commit()
		return
	}

	finding := r.validator.Validate(&rec)
	r.res.Analysis = &Analysis{Validation: &finding}
	if finding.Citation != nil {
		step.Cite(*finding.Citation)
	}
	step.Output("%s: completeness %.2f, %d missing, %d suspicious",
		rec.Name, finding.CompletenessScore, len(finding.MissingFields), len(finding.SuspiciousClaims)).
		Commit()
}

func (r *run) summarize(note string) {
	s := Summarize(r.context)
	r.res.Analysis = &Analysis{Summary: s, Note: note}
	r.tracker.Begin(StepSynthesis, r.query).
		CiteAll(index.Citations(r.context)).
		Output("aggregated %d facilities across %d regions", s.Facilities, len(s.ByRegion)).
		Commit()
}

func (r *run) synthesize(ctx context.Context) error {
	if r.generator == nil {
		return fmt.Errorf("%w: no generator configured", errs.ErrGeneration)
	}

	payload := r.payload()
	ctx, cancel := context.WithTimeout(ctx, r.opts.GenerationTimeout)
	defer cancel()

	answer, err := r.generator.Generate(ctx, Prompt(r.query), payload)
	if err != nil {
		return errs.Classify(ctx, err, errs.ErrGeneration)
	}
	if strings.TrimSpace(answer) == "" {
		return fmt.Errorf("%w: empty response", errs.ErrGeneration)
	}
	r.res.Answer = answer

	r.tracker.Begin(StepGeneration, fmt.Sprintf("%d context entries, %d citations", len(payload.Context), len(payload.Citations))).
		CiteAll(payload.Citations).
		Output("generated %d characters", len(answer)).
		Commit()
	return nil
}

// payload collects everything committed so far. Its citations are the only
// ones the answer may use.
func (r *run) payload() types.Payload {
	p := types.Payload{
		Query:     r.query,
		Intent:    r.res.Intent,
		Context:   make([]types.ContextEntry, len(r.context)),
		Citations: r.tracker.Citations(),
	}
	if r.res.Analysis != nil {
		p.Analysis = r.res.Analysis
	}
	for i, res := range r.context {
		p.Context[i] = types.ContextEntry{
			Rank:     i + 1,
			RowID:    res.RowID,
			Score:    res.Score,
			Text:     res.Record.ProfileText,
			Citation: models.CiteRecord(&res.Record),
		}
	}
	for _, s := range r.tracker.Steps() {
		p.Steps = append(p.Steps, fmt.Sprintf("%s: %s", s.Name, s.OutputSummary))
	}
	return boundPayload(p, r.opts.MaxContextChars)
}


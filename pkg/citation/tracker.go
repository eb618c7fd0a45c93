// Package citation records the provenance of one query: an append-only list
// of pipeline steps, each with the rows it drew on.
package citation

import (
	"fmt"
	"strings"

	"github.com/xhad/carescope/internal/models"
)

// Tracker is owned by a single query and is not safe for concurrent use.
type Tracker struct {
	steps []models.AgentStep
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// StepBuilder collects one step before it is committed to the trace.
type StepBuilder struct {
	t    *Tracker
	step models.AgentStep
	done bool
}

func (t *Tracker) Begin(name, input string) *StepBuilder {
	return &StepBuilder{
		t:    t,
		step: models.AgentStep{Name: name, InputSummary: input, Citations: []models.Citation{}},
	}
}

func (b *StepBuilder) Cite(c models.Citation) *StepBuilder {
	b.step.Citations = append(b.step.Citations, c)
	return b
}

func (b *StepBuilder) CiteAll(cs []models.Citation) *StepBuilder {
	b.step.Citations = append(b.step.Citations, cs...)
	return b
}

func (b *StepBuilder) Output(format string, args ...any) *StepBuilder {
	b.step.OutputSummary = fmt.Sprintf(format, args...)
	return b
}

// Commit appends the step to the trace. Committing twice is a no-op.
func (b *StepBuilder) Commit() models.AgentStep {
	if !b.done {
		b.done = true
		b.t.steps = append(b.t.steps, b.step)
	}
	return copyStep(b.step)
}

// Steps returns a copy of the committed trace.
func (t *Tracker) Steps() []models.AgentStep {
	out := make([]models.AgentStep, len(t.steps))
	for i, s := range t.steps {
		out[i] = copyStep(s)
	}
	return out
}

func (t *Tracker) Len() int { return len(t.steps) }

// Citations merges every committed step's citations, first occurrence wins.
func (t *Tracker) Citations() []models.Citation {
	seen := make(map[models.Citation]bool)
	out := []models.Citation{}
	for _, s := range t.steps {
		for _, c := range s.Citations {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Render lists citations one per line as "[n] Row <id>, Source: <url>".
func Render(cs []models.Citation) string {
	var b strings.Builder
	for i, c := range cs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
	}
	return b.String()
}

func copyStep(s models.AgentStep) models.AgentStep {
	s.Citations = append([]models.Citation{}, s.Citations...)
	return s
}

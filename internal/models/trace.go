package models

import (
	"fmt"
	"strings"
)

// Citation points at the corpus row a claim was derived from.
type Citation struct {
	RowID     int    `json:"row_id"`
	SourceURL string `json:"source_url,omitempty"`
}

func CiteRecord(r *FacilityRecord) Citation {
	return Citation{RowID: r.RowID, SourceURL: r.SourceURL}
}

// String renders "Row <id>, Source: <url>", dropping the source clause when
// the record has no URL.
func (c Citation) String() string {
	if c.SourceURL == "" {
		return fmt.Sprintf("Row %d", c.RowID)
	}
	return fmt.Sprintf("Row %d, Source: %s", c.RowID, c.SourceURL)
}

type AgentStep struct {
	Name          string     `json:"name"`
	InputSummary  string     `json:"input_summary"`
	OutputSummary string     `json:"output_summary"`
	Citations     []Citation `json:"citations"`
}

type Intent string

const (
	IntentSearch          Intent = "search"
	IntentDesertDetection Intent = "desert_detection"
	IntentValidation      Intent = "validation"
	IntentGeneral         Intent = "general"
)

func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentSearch:
		return IntentSearch, true
	case IntentDesertDetection, "desert":
		return IntentDesertDetection, true
	case IntentValidation, "validate":
		return IntentValidation, true
	case IntentGeneral:
		return IntentGeneral, true
	}
	return "", false
}

// Severity is ordered: None < Moderate < Severe < Critical.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityModerate
	SeveritySevere
	SeverityCritical
)

var severityNames = [...]string{"none", "moderate", "severe", "critical"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for i, name := range severityNames {
		if strings.EqualFold(name, string(b)) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", string(b))
}

type SuspiciousClaim struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type ValidationFinding struct {
	RowID             int               `json:"row_id"`
	Name              string            `json:"name,omitempty"`
	CompletenessScore float64           `json:"completeness_score"`
	MissingFields     []string          `json:"missing_fields"`
	SuspiciousClaims  []SuspiciousClaim `json:"suspicious_claims"`
	Citation          *Citation         `json:"citation,omitempty"`
}

// Package desert scores how well a region is covered for a specialty.
package desert

import (
	"sort"
	"strings"

	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/corpus"
)

// Threshold maps a minimum facility count to a severity. Thresholds are
// checked from the highest MinCount down.
type Threshold struct {
	MinCount int
	Severity models.Severity
}

var Thresholds = []Threshold{
	{MinCount: 5, Severity: models.SeverityNone},
	{MinCount: 3, Severity: models.SeverityModerate},
	{MinCount: 1, Severity: models.SeveritySevere},
	{MinCount: 0, Severity: models.SeverityCritical},
}

type Result struct {
	Specialty       string                  `json:"specialty"`
	Region          string                  `json:"region"`
	Severity        models.Severity         `json:"severity"`
	Count           int                     `json:"count"`
	// IsDesert is set for severe and critical results.
	IsDesert        bool                    `json:"is_desert"`
	MatchingRecords []models.FacilityRecord `json:"-"`
	MatchingRowIDs  []int                   `json:"matching_row_ids"`
	Citations       []models.Citation       `json:"citations"`
	// RegionalFacilities counts every facility in the region, any specialty.
	RegionalFacilities int `json:"regional_facilities"`
	TotalFacilities    int `json:"total_facilities"`
}

// SeverityFor maps a matching-facility count to its severity.
func SeverityFor(n int) models.Severity {
	for _, t := range Thresholds {
		if n >= t.MinCount {
			return t.Severity
		}
	}
	return models.SeverityCritical
}

// Detect counts facilities in region (case-insensitive exact match) that
// list specialty. A region or specialty absent from the corpus is a
// critical result, not an error.
func Detect(c *corpus.Corpus, specialty, region string) Result {
	res := Result{
		Specialty:      specialty,
		Region:         region,
		MatchingRowIDs: []int{},
		Citations:      []models.Citation{},
	}
	if c != nil {
		inRegion := func(r *models.FacilityRecord) bool {
			return strings.EqualFold(strings.TrimSpace(r.Region), strings.TrimSpace(region))
		}
		res.MatchingRecords = c.Filter(func(r *models.FacilityRecord) bool {
			return inRegion(r) && r.HasSpecialty(specialty)
		})
		res.RegionalFacilities = c.Count(inRegion)
		res.TotalFacilities = c.Len()
	}
	for i := range res.MatchingRecords {
		r := &res.MatchingRecords[i]
		res.MatchingRowIDs = append(res.MatchingRowIDs, r.RowID)
		res.Citations = append(res.Citations, models.CiteRecord(r))
	}
	res.Count = len(res.MatchingRecords)
	res.Severity = SeverityFor(res.Count)
	res.IsDesert = res.Severity >= models.SeveritySevere
	return res
}

// Scan runs Detect for specialty in every corpus region plus extra regions
// the corpus does not mention. Results are ordered most severe first, then
// by region name.
func Scan(c *corpus.Corpus, specialty string, extra ...string) []Result {
	seen := make(map[string]bool)
	var regions []string
	add := func(r string) {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		regions = append(regions, r)
	}
	if c != nil {
		for _, r := range c.Regions() {
			add(r)
		}
	}
	for _, r := range extra {
		add(r)
	}

	out := make([]Result, 0, len(regions))
	for _, r := range regions {
		out = append(out, Detect(c, specialty, r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return strings.ToLower(out[i].Region) < strings.ToLower(out[j].Region)
	})
	return out
}

package agent

import (
	"sort"
	"strings"

	"github.com/xhad/carescope/pkg/index"
)

const topSpecialties = 5

type SpecialtyCount struct {
	Specialty string `json:"specialty"`
	Count     int    `json:"count"`
}

type Match struct {
	Rank      int     `json:"rank"`
	RowID     int     `json:"row_id"`
	Name      string  `json:"name"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Relevance float64 `json:"relevance_score"`
}

// Summary aggregates the retrieved facilities for search and general queries.
type Summary struct {
	Facilities     int              `json:"facilities"`
	ByRegion       map[string]int   `json:"by_region"`
	ByType         map[string]int   `json:"by_type"`
	TopSpecialties []SpecialtyCount `json:"top_specialties"`
	Matches        []Match          `json:"matches"`
}

// Summarize counts results by region, facility type and specialty. Region
// and type keys keep the spelling of the first result that used them.
func Summarize(results []index.Result) *Summary {
	s := &Summary{
		Facilities:     len(results),
		ByRegion:       map[string]int{},
		ByType:         map[string]int{},
		TopSpecialties: []SpecialtyCount{},
		Matches:        make([]Match, 0, len(results)),
	}
	regionKey := map[string]string{}
	spec := map[string]*SpecialtyCount{}

	for i, r := range results {
		rec := r.Record
		s.Matches = append(s.Matches, Match{
			Rank:      i + 1,
			RowID:     r.RowID,
			Name:      rec.Name,
			Region:    rec.Region,
			City:      rec.City,
			Relevance: r.Score,
		})

		if region := strings.TrimSpace(rec.Region); region != "" {
			key := strings.ToLower(region)
			if _, ok := regionKey[key]; !ok {
				regionKey[key] = region
			}
			s.ByRegion[regionKey[key]]++
		}
		ft := strings.ToLower(strings.TrimSpace(rec.FacilityType))
		if ft == "" {
			ft = "unknown"
		}
		s.ByType[ft]++

		for _, tag := range rec.Specialties {
			key := strings.ToLower(tag)
			if sc, ok := spec[key]; ok {
				sc.Count++
				continue
			}
			spec[key] = &SpecialtyCount{Specialty: tag, Count: 1}
		}
	}

	for _, sc := range spec {
		s.TopSpecialties = append(s.TopSpecialties, *sc)
	}
	sort.Slice(s.TopSpecialties, func(i, j int) bool {
		a, b := s.TopSpecialties[i], s.TopSpecialties[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return strings.ToLower(a.Specialty) < strings.ToLower(b.Specialty)
	})
	if len(s.TopSpecialties) > topSpecialties {
		s.TopSpecialties = s.TopSpecialties[:topSpecialties]
	}
	return s
}

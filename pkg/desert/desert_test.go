package desert_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/carescope/internal/fixtures"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/corpus"
	"github.com/xhad/carescope/pkg/desert"
)

// corpusWith builds a corpus with n cardiology facilities in Oti plus
// decoys that must not be counted.
func corpusWith(t *testing.T, n int) *corpus.Corpus {
	t.Helper()
	rows := []corpus.Row{
		{"name": "Oti Eye Clinic", "region": "Oti", "specialties": []any{"ophthalmology"}},
		{"name": "Volta Heart Centre", "region": "Volta", "specialties": []any{"cardiology"}},
	}
	for i := 0; i < n; i++ {
		rows = append(rows, corpus.Row{
			"name":        fmt.Sprintf("Oti Facility %d", i),
			"region":      "Oti",
			"specialties": []any{"cardiology"},
			"source_url":  fmt.Sprintf("https://example.org/oti/%d", i),
		})
	}
	c, err := corpus.Load(rows)
	require.NoError(t, err)
	return c
}

func TestDetect_SeverityBoundaries(t *testing.T) {
	want := []models.Severity{
		models.SeverityCritical,
		models.SeveritySevere,
		models.SeveritySevere,
		models.SeverityModerate,
		models.SeverityModerate,
		models.SeverityNone,
		models.SeverityNone,
	}
	for n, sev := range want {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			res := desert.Detect(corpusWith(t, n), "cardiology", "Oti")
			assert.Equal(t, sev, res.Severity)
			assert.Equal(t, sev, desert.SeverityFor(n))
			assert.Equal(t, n, res.Count)
			assert.Len(t, res.Citations, n)
			assert.Len(t, res.MatchingRowIDs, n)
			assert.Equal(t, n+1, res.RegionalFacilities)
			assert.Equal(t, sev >= models.SeveritySevere, res.IsDesert)
		})
	}
}

func TestDetect_GhanaScenario(t *testing.T) {
	c := fixtures.Corpus(t)

	northern := desert.Detect(c, "cardiology", "Northern")
	assert.Equal(t, models.SeveritySevere, northern.Severity)
	assert.Equal(t, []int{7, 8}, northern.MatchingRowIDs)
	require.Len(t, northern.Citations, 2)
	assert.Equal(t, "Row 7, Source: https://example.org/facilities/tamale-teaching", northern.Citations[0].String())
	assert.Equal(t, "Row 8", northern.Citations[1].String())

	accra := desert.Detect(c, "cardiology", "Greater Accra")
	assert.Equal(t, models.SeverityNone, accra.Severity)
	assert.Len(t, accra.Citations, 6)
	assert.False(t, accra.IsDesert)

	volta := desert.Detect(c, "cardiology", "Volta")
	assert.Equal(t, models.SeverityCritical, volta.Severity)
	assert.NotNil(t, volta.Citations)
	assert.Empty(t, volta.Citations)
	assert.Zero(t, volta.RegionalFacilities)
	assert.Equal(t, 12, volta.TotalFacilities)
}

func TestDetect_CaseInsensitive(t *testing.T) {
	c := fixtures.Corpus(t)
	res := desert.Detect(c, "CARDIOLOGY", " greater ACCRA ")
	assert.Equal(t, 6, res.Count)
}

func TestDetect_UnknownSpecialty(t *testing.T) {
	res := desert.Detect(fixtures.Corpus(t), "astrology", "Ashanti")
	assert.Equal(t, models.SeverityCritical, res.Severity)
	assert.Equal(t, 1, res.RegionalFacilities)
}

func TestDetect_NilCorpus(t *testing.T) {
	res := desert.Detect(nil, "cardiology", "Northern")
	assert.Equal(t, models.SeverityCritical, res.Severity)
	assert.Zero(t, res.TotalFacilities)
}

func TestScan(t *testing.T) {
	results := desert.Scan(fixtures.Corpus(t), "cardiology", "Volta", "northern")

	var regions []string
	for _, r := range results {
		regions = append(regions, r.Region)
	}
	// Upper East and Volta have none, Northern two, Ashanti one.
	assert.Equal(t, []string{"Upper East", "Volta", "Ashanti", "Northern", "Greater Accra"}, regions)
	assert.Equal(t, models.SeverityCritical, results[0].Severity)
	assert.Equal(t, models.SeverityNone, results[len(results)-1].Severity)
}

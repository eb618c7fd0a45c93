package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/carescope/internal/fixtures"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/validator"
)

func TestValidate_Completeness(t *testing.T) {
	r := &models.FacilityRecord{
		RowID:        3,
		Name:         "Hohoe Municipal Hospital",
		Region:       "Volta",
		FacilityType: "hospital",
		Specialties:  []string{"pediatrics"},
	}
	f := validator.Validate(r)

	assert.InDelta(t, 4.0/6.0, f.CompletenessScore, 1e-9)
	assert.Equal(t, []string{validator.FieldServices, validator.FieldContact}, f.MissingFields)
	assert.Empty(t, f.SuspiciousClaims)
	require.NotNil(t, f.Citation)
	assert.Equal(t, "Row 3", f.Citation.String())
}

func TestValidate_FixtureRecords(t *testing.T) {
	c := fixtures.Corpus(t)

	tests := []struct {
		rowID   int
		score   float64
		missing []string
		claims  []string
	}{
		{rowID: 3, score: 1, missing: []string{}, claims: []string{}},
		{rowID: 0, score: 1, missing: []string{}, claims: []string{models.ClaimBedCapacity}},
		{rowID: 7, score: 1, missing: []string{}, claims: []string{models.ClaimDoctorCount}},
		{
			rowID:   11,
			score:   3.0 / 6.0,
			missing: []string{validator.FieldFacilityType, validator.FieldServices, validator.FieldContact},
			claims:  []string{},
		},
	}
	for _, tt := range tests {
		rec, ok := c.Record(tt.rowID)
		require.True(t, ok)

		f := validator.Validate(&rec)
		assert.InDelta(t, tt.score, f.CompletenessScore, 1e-9, "row %d", tt.rowID)
		assert.Equal(t, tt.missing, f.MissingFields, "row %d", tt.rowID)

		fields := []string{}
		for _, c := range f.SuspiciousClaims {
			fields = append(fields, c.Field)
		}
		assert.Equal(t, tt.claims, fields, "row %d", tt.rowID)
	}
}

func TestValidate_DoctorCountAboveBound(t *testing.T) {
	r := &models.FacilityRecord{
		Name:   "Tamale Teaching Hospital",
		Claims: map[string]string{models.ClaimDoctorCount: "5000"},
	}
	f := validator.Validate(r)
	require.Len(t, f.SuspiciousClaims, 1)
	claim := f.SuspiciousClaims[0]
	assert.Equal(t, models.ClaimDoctorCount, claim.Field)
	assert.Equal(t, "5000", claim.Value)
	assert.Equal(t, "doctor_count of 5000 exceeds the plausible maximum of 500 doctors", claim.Reason)
}

func TestValidate_Rules(t *testing.T) {
	specialties := make([]string, 16)
	for i := range specialties {
		specialties[i] = string(rune('a' + i))
	}

	tests := []struct {
		name   string
		record models.FacilityRecord
		field  string
		reason string
	}{
		{
			name:   "non-numeric beds",
			record: models.FacilityRecord{Claims: map[string]string{models.ClaimBedCapacity: "about fifty"}},
			field:  models.ClaimBedCapacity,
			reason: `bed_capacity is not a number: "about fifty"`,
		},
		{
			name:   "thousands separator",
			record: models.FacilityRecord{Claims: map[string]string{models.ClaimBedCapacity: "1,200"}},
			field:  models.ClaimBedCapacity,
			reason: "bed_capacity of 1200 exceeds the plausible maximum of 1000 beds",
		},
		{
			name:   "year too early",
			record: models.FacilityRecord{Claims: map[string]string{models.ClaimYearEstablished: "1650"}},
			field:  models.ClaimYearEstablished,
			reason: "year_established of 1650 is below the plausible minimum of 1800",
		},
		{
			name:   "negative doctors",
			record: models.FacilityRecord{Claims: map[string]string{models.ClaimDoctorCount: "-3"}},
			field:  models.ClaimDoctorCount,
			reason: "doctor_count of -3 is below the plausible minimum of 0 doctors",
		},
		{
			name:   "specialty breadth",
			record: models.FacilityRecord{Specialties: specialties},
			field:  validator.SpecialtyCount,
			reason: "specialty_count of 16 exceeds the plausible maximum of 15 specialties",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validator.Validate(&tt.record)
			require.Len(t, f.SuspiciousClaims, 1)
			assert.Equal(t, tt.field, f.SuspiciousClaims[0].Field)
			assert.Equal(t, tt.reason, f.SuspiciousClaims[0].Reason)
		})
	}
}

func TestValidate_BoundsAreInclusive(t *testing.T) {
	r := &models.FacilityRecord{Claims: map[string]string{
		models.ClaimDoctorCount:     "500",
		models.ClaimBedCapacity:     "1000",
		models.ClaimYearEstablished: "1800",
	}}
	assert.Empty(t, validator.Validate(r).SuspiciousClaims)
}

func TestValidate_NilRecord(t *testing.T) {
	f := validator.Validate(nil)
	assert.Zero(t, f.CompletenessScore)
	assert.Equal(t, validator.RequiredFields, f.MissingFields)
	assert.Nil(t, f.Citation)
}

func TestValidate_Idempotent(t *testing.T) {
	rec, ok := fixtures.Corpus(t).Record(7)
	require.True(t, ok)
	assert.Equal(t, validator.Validate(&rec), validator.Validate(&rec))
}

func TestNew_CustomBounds(t *testing.T) {
	v := validator.New([]validator.Rule{{Field: models.ClaimDoctorCount, Max: 10000}})
	r := &models.FacilityRecord{Claims: map[string]string{
		models.ClaimDoctorCount: "5000",
		models.ClaimBedCapacity: "5000",
	}}
	assert.Empty(t, v.Validate(r).SuspiciousClaims)
	assert.Len(t, v.Rules(), 1)
	assert.Len(t, validator.Rules(), 4)
}

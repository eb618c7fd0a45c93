// Package validator scores facility records for completeness and flags
// declared figures outside plausible bounds.
package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xhad/carescope/internal/models"
)

// Required fields, in reporting order.
const (
	FieldName         = "name"
	FieldRegion       = "region"
	FieldFacilityType = "facility_type"
	FieldSpecialties  = "specialties"
	FieldServices     = "services"
	FieldContact      = "contact"
)

// SpecialtyCount is a derived claim: the number of specialties listed.
const SpecialtyCount = "specialty_count"

var RequiredFields = []string{
	FieldName, FieldRegion, FieldFacilityType, FieldSpecialties, FieldServices, FieldContact,
}

// Rule bounds one numeric claim. Values outside [Min, Max] are suspicious.
type Rule struct {
	Field string  `yaml:"field" json:"field"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Unit  string  `yaml:"unit,omitempty" json:"unit,omitempty"`
}

var defaultRules = []Rule{
	{Field: models.ClaimDoctorCount, Min: 0, Max: 500, Unit: "doctors"},
	{Field: models.ClaimBedCapacity, Min: 0, Max: 1000, Unit: "beds"},
	{Field: SpecialtyCount, Min: 0, Max: 15, Unit: "specialties"},
	{Field: models.ClaimYearEstablished, Min: 1800, Max: 2100},
}

// Rules returns a copy of the default plausibility rules.
func Rules() []Rule {
	return append([]Rule(nil), defaultRules...)
}

type Validator struct {
	rules []Rule
}

func New(rules []Rule) *Validator {
	return &Validator{rules: append([]Rule(nil), rules...)}
}

var std = New(defaultRules)

// Validate checks r against the default rules.
func Validate(r *models.FacilityRecord) models.ValidationFinding {
	return std.Validate(r)
}

func (v *Validator) Rules() []Rule {
	return append([]Rule(nil), v.rules...)
}

// Validate never fails. A nil record scores 0 with every field missing.
func (v *Validator) Validate(r *models.FacilityRecord) models.ValidationFinding {
	f := models.ValidationFinding{
		RowID:            -1,
		MissingFields:    []string{},
		SuspiciousClaims: []models.SuspiciousClaim{},
	}
	if r == nil {
		f.MissingFields = append(f.MissingFields, RequiredFields...)
		return f
	}

	f.RowID = r.RowID
	f.Name = r.Name
	cite := models.CiteRecord(r)
	f.Citation = &cite

	present := 0
	for _, field := range RequiredFields {
		if has(r, field) {
			present++
		} else {
			f.MissingFields = append(f.MissingFields, field)
		}
	}
	f.CompletenessScore = float64(present) / float64(len(RequiredFields))

	for _, rule := range v.rules {
		raw, ok := claimValue(r, rule.Field)
		if !ok {
			continue
		}
		if claim, bad := rule.check(raw); bad {
			f.SuspiciousClaims = append(f.SuspiciousClaims, claim)
		}
	}
	return f
}

func has(r *models.FacilityRecord, field string) bool {
	switch field {
	case FieldName:
		return strings.TrimSpace(r.Name) != ""
	case FieldRegion:
		return strings.TrimSpace(r.Region) != ""
	case FieldFacilityType:
		return strings.TrimSpace(r.FacilityType) != ""
	case FieldSpecialties:
		return len(r.Specialties) > 0
	case FieldServices:
		return r.HasServices()
	case FieldContact:
		return !r.Contact.Empty()
	}
	return false
}

func claimValue(r *models.FacilityRecord, field string) (string, bool) {
	if field == SpecialtyCount {
		if len(r.Specialties) == 0 {
			return "", false
		}
		return strconv.Itoa(len(r.Specialties)), true
	}
	v, ok := r.Claims[field]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (rule Rule) check(raw string) (models.SuspiciousClaim, bool) {
	claim := models.SuspiciousClaim{Field: rule.Field, Value: raw}
	n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
	switch {
	case err != nil || math.IsNaN(n) || math.IsInf(n, 0):
		claim.Reason = fmt.Sprintf("%s is not a number: %q", rule.Field, raw)
	case n > rule.Max:
		claim.Reason = fmt.Sprintf("%s of %s exceeds the plausible maximum of %s%s",
			rule.Field, formatNumber(n), formatNumber(rule.Max), rule.unitSuffix())
	case n < rule.Min:
		claim.Reason = fmt.Sprintf("%s of %s is below the plausible minimum of %s%s",
			rule.Field, formatNumber(n), formatNumber(rule.Min), rule.unitSuffix())
	default:
		return claim, false
	}
	return claim, true
}

func (rule Rule) unitSuffix() string {
	if rule.Unit == "" {
		return ""
	}
	return " " + rule.Unit
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Package fixtures holds a small facility corpus shared by package tests.
package fixtures

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xhad/carescope/pkg/corpus"
)

// Rows returns a fresh copy of the Ghana test corpus. It has six cardiology
// facilities in Greater Accra, two in Northern and no Volta rows at all.
// Row 9 carries a malformed specialties list.
func Rows() []corpus.Row {
	return []corpus.Row{
		{
			"name":          "Korle Bu Teaching Hospital",
			"region":        "Greater Accra",
			"city":          "Accra",
			"country":       "Ghana",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology", "generalSurgery", "pediatrics", "radiology"},
			"procedures":    "['cardiac catheterization', 'open heart surgery']",
			"equipment":     []any{"CT scanner", "MRI"},
			"phone":         "+233 30 267 4053",
			"website":       "https://kbth.gov.gh",
			"source_url":    "https://example.org/facilities/korle-bu",
			"doctor_count":  450,
			"capacity":      2000,
		},
		{
			"name":          "Ridge Hospital",
			"region":        "Greater Accra",
			"city":          "Accra",
			"facility_type": "hospital",
			"specialties":   `["cardiology", "pediatrics"]`,
			"capabilities":  []any{"24-hour emergency care"},
			"email":         "info@ridge.example.org",
			"source_url":    "https://example.org/facilities/ridge",
		},
		{
			"name":          "37 Military Hospital",
			"region":        "greater accra",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology", "emergencyMedicine"},
			"equipment":     []any{"ambulance fleet"},
			"phone":         "+233 30 277 6111",
			"source_url":    "https://example.org/facilities/37-military",
		},
		{
			"name":          "Nyaho Medical Centre",
			"region":        "Greater Accra",
			"facility_type": "clinic",
			"specialties":   []any{"Cardiology", "dentistry"},
			"procedures":    []any{"echocardiography"},
			"website":       "https://nyaho.example.org",
		},
		{
			"name":          "Lister Hospital",
			"region":        "Greater Accra",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology"},
			"capabilities":  []any{"<b>cardiac</b> rehabilitation"},
			"phone":         "+233 30 281 2325",
			"source_url":    "https://example.org/facilities/lister",
		},
		{
			"name":          "Greater Accra Regional Hospital",
			"region":        "Greater Accra",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology", "internalMedicine"},
			"procedures":    []any{"dialysis"},
			"phone":         "+233 30 222 8382",
			"source_url":    "https://example.org/facilities/garh",
		},
		{
			"name":          "Trust Hospital Osu",
			"region":        "Greater Accra",
			"facility_type": "hospital",
			"specialties":   []any{"pediatrics"},
			"procedures":    []any{"vaccination"},
			"phone":         "+233 30 276 1974",
			"source_url":    "https://example.org/facilities/trust-osu",
		},
		{
			"name":          "Tamale Teaching Hospital",
			"region":        "Northern",
			"city":          "Tamale",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology", "ophthalmology", "pediatrics"},
			"equipment":     []any{"X-ray"},
			"phone":         "+233 37 202 2454",
			"source_url":    "https://example.org/facilities/tamale-teaching",
			"doctor_count":  5000,
		},
		{
			"name":          "Tamale Central Hospital",
			"region":        "Northern",
			"city":          "Tamale",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology"},
			"procedures":    []any{"ECG"},
			"phone":         "+233 37 202 0001",
		},
		{
			"name":          "Savelugu Health Centre",
			"region":        "Northern",
			"facility_type": "clinic",
			"specialties":   "['familyMedicine'",
			"capabilities":  []any{"maternal care"},
			"phone":         "+233 37 209 1111",
		},
		{
			"name":          "Komfo Anokye Teaching Hospital",
			"region":        "Ashanti",
			"city":          "Kumasi",
			"facility_type": "hospital",
			"specialties":   []any{"cardiology", "generalSurgery", "ophthalmology"},
			"procedures":    []any{"cataract surgery"},
			"phone":         "+233 32 202 2301",
			"source_url":    "https://example.org/facilities/komfo-anokye",
		},
		{
			"name":        "Bolgatanga Regional Hospital",
			"region":      "Upper East",
			"specialties": []any{"pediatrics"},
		},
	}
}

// Corpus loads Rows and fails the test on error.
func Corpus(t testing.TB) *corpus.Corpus {
	t.Helper()
	c, err := corpus.Load(Rows())
	require.NoError(t, err)
	return c
}

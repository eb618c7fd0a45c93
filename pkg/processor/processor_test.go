package processor_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/processor"
)

func TestProcessor_Profile(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	rec := models.FacilityRecord{
		Name:         "Tamale  Teaching Hospital",
		FacilityType: "hospital",
		Specialties:  []string{"cardiology", "pediatrics"},
		Procedures:   []string{"echocardiography", "cardiac catheterization"},
		Equipment:    []string{"CT scanner"},
		City:         "Tamale",
		Region:       "Northern",
		Country:      "Ghana",
	}

	got := p.Profile(&rec)
	assert.Equal(t,
		"Name: Tamale Teaching Hospital | Type: hospital | Specialties: cardiology, pediatrics | "+
			"Procedures: echocardiography; cardiac catheterization | Equipment: CT scanner | "+
			"Location: Tamale, Northern, Ghana",
		got)

	// Same record, same text.
	assert.Equal(t, got, p.Profile(&rec))
	assert.Empty(t, p.Profile(nil))
}

func TestProcessor_ProfileSeparatorAndListLimit(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{Separator: " / ", MaxListItems: 1})
	a := models.FacilityRecord{Name: "A", Capabilities: []string{"x", "y"}}
	b := models.FacilityRecord{Name: "B", Description: "rural clinic"}

	assert.Equal(t, "Name: A / Capabilities: x", p.Profile(&a))
	assert.Equal(t, "Name: B / Description: rural clinic", p.Profile(&b))
	assert.Empty(t, a.ProfileText)
}

func TestProcessor_Tokenize(t *testing.T) {
	tests := []struct {
		name   string
		config processor.ProcessorConfig
		text   string
		want   []string
	}{
		{
			name: "keeps stopwords by default",
			text: "Where is the MRI in Accra?",
			want: []string{"where", "is", "the", "mri", "in", "accra"},
		},
		{
			name:   "drops stopwords",
			config: processor.ProcessorConfig{RemoveStopwords: true, CustomStopwords: []string{"Where"}},
			text:   "Where is the MRI in Accra?",
			want:   []string{"mri", "accra"},
		},
		{
			name: "numbers are tokens",
			text: "200 beds",
			want: []string{"200", "beds"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := processor.NewWithConfig(tt.config)
			assert.Equal(t, tt.want, p.Tokenize(tt.text))
		})
	}
}

func TestProcessor_ProfileFieldOrder(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	rec := models.FacilityRecord{
		Name:         "Ridge Hospital",
		FacilityType: "hospital",
		Specialties:  []string{"pediatrics"},
		Procedures:   []string{"cesarean section"},
		Equipment:    []string{"incubator"},
		Capabilities: []string{"24 hour emergency"},
		Description:  "Regional referral hospital",
		City:         "Accra",
	}

	parts := strings.Split(p.Profile(&rec), " | ")
	require.Len(t, parts, len(processor.ProfileFields))
	for i, field := range processor.ProfileFields {
		assert.True(t, strings.HasPrefix(parts[i], field+": "), "part %d is %q", i, parts[i])
	}
}

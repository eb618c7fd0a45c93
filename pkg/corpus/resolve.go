package corpus

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/processor"
)

// containmentScore is the similarity given when the identifier appears
// whole inside a facility name.
const containmentScore = 0.9

// ResolveName finds the record whose name best matches identifier. An exact
// case-insensitive match scores 1. Otherwise the score is the normalized
// Levenshtein similarity, raised to containmentScore when the identifier is
// a substring of the name. Ties go to the lowest row id. Scores below
// minSimilarity yield errs.ErrNotFound.
func (c *Corpus) ResolveName(identifier string, minSimilarity float64) (models.FacilityRecord, float64, error) {
	needle := strings.ToLower(strings.Join(strings.Fields(identifier), " "))
	if needle == "" {
		return models.FacilityRecord{}, 0, fmt.Errorf("%w: empty facility identifier", errs.ErrNotFound)
	}

	best, bestScore := -1, -1.0
	for i := range c.records {
		score := nameSimilarity(needle, strings.ToLower(c.records[i].Name))
		if score > bestScore {
			best, bestScore = i, score
		}
		if score == 1 {
			break
		}
	}

	if best < 0 || bestScore < minSimilarity {
		return models.FacilityRecord{}, bestScore, fmt.Errorf("%w: no facility matches %q (best similarity %.2f)",
			errs.ErrNotFound, identifier, bestScore)
	}
	return c.records[best].Clone(), bestScore, nil
}

// FindNameIn returns the record whose full name appears in text, preferring
// the longest name, then the lowest row id.
func (c *Corpus) FindNameIn(text string) (models.FacilityRecord, bool) {
	haystack := strings.ToLower(strings.Join(strings.Fields(text), " "))
	best := -1
	for i := range c.records {
		name := strings.ToLower(c.records[i].Name)
		if utf8.RuneCountInString(name) < 3 {
			continue
		}
		if !processor.ContainsPhrase(haystack, name) {
			continue
		}
		if best < 0 || len(name) > len(c.records[best].Name) {
			best = i
		}
	}
	if best < 0 {
		return models.FacilityRecord{}, false
	}
	return c.records[best].Clone(), true
}

func nameSimilarity(needle, name string) float64 {
	if name == "" {
		return 0
	}
	if needle == name {
		return 1
	}
	maxLen := utf8.RuneCountInString(needle)
	if n := utf8.RuneCountInString(name); n > maxLen {
		maxLen = n
	}
	score := 1 - float64(levenshtein.ComputeDistance(needle, name))/float64(maxLen)
	if utf8.RuneCountInString(needle) >= 4 && processor.ContainsPhrase(name, needle) && score < containmentScore {
		score = containmentScore
	}
	return score
}

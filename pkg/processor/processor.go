package processor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xhad/carescope/internal/models"
)

// ProfileFields is the fixed order in which record fields are rendered into
// profile text. Changing it changes every embedding.
var ProfileFields = []string{
	"Name", "Type", "Specialties", "Procedures", "Equipment",
	"Capabilities", "Description", "Location",
}

type ProcessorConfig struct {
	Separator       string
	ListSeparator   string
	MaxListItems    int
	RemoveStopwords bool
	CustomStopwords []string
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

func NewWithConfig(config ProcessorConfig) Processor {
	if config.Separator == "" {
		config.Separator = " | "
	}
	if config.ListSeparator == "" {
		config.ListSeparator = "; "
	}

	stop := make(map[string]struct{})
	for _, w := range getStopwords() {
		stop[w] = struct{}{}
	}
	for _, w := range config.CustomStopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	return Processor{
		config:    config,
		stopwords: stop,
	}
}

// Profile renders a record as "Label: value" parts in ProfileFields order,
// joined by the separator. Empty parts are skipped.
func (p *Processor) Profile(r *models.FacilityRecord) string {
	if r == nil {
		return ""
	}
	var parts []string
	add := func(label, value string) {
		value = cleanText(value)
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}

	add("Name", r.Name)
	add("Type", r.FacilityType)
	add("Specialties", strings.Join(p.limit(r.Specialties), ", "))
	add("Procedures", strings.Join(p.limit(r.Procedures), p.config.ListSeparator))
	add("Equipment", strings.Join(p.limit(r.Equipment), p.config.ListSeparator))
	add("Capabilities", strings.Join(p.limit(r.Capabilities), p.config.ListSeparator))
	add("Description", r.Description)

	var loc []string
	for _, v := range []string{r.City, r.Region, r.Country} {
		if v = cleanText(v); v != "" {
			loc = append(loc, v)
		}
	}
	add("Location", strings.Join(loc, ", "))

	return strings.Join(parts, p.config.Separator)
}

// Tokenize lower-cases text and splits it into word and number tokens,
// dropping stopwords when configured.
func (p *Processor) Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if !p.config.RemoveStopwords {
		return raw
	}
	out := raw[:0]
	for _, t := range raw {
		if _, ok := p.stopwords[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func (p *Processor) limit(items []string) []string {
	if p.config.MaxListItems > 0 && len(items) > p.config.MaxListItems {
		return items[:p.config.MaxListItems]
	}
	return items
}

// ContainsPhrase reports whether phrase occurs in text starting and ending
// on word boundaries. Both are expected lower-cased.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	idx := 0
	for idx <= len(text) {
		j := strings.Index(text[idx:], phrase)
		if j < 0 {
			return false
		}
		start := idx + j
		end := start + len(phrase)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return true
		}
		idx = start + 1
	}
	return false
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	if r == utf8.RuneError {
		r, _ = utf8.DecodeLastRuneInString(s[:i+1])
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func cleanText(text string) string {
	// Collapse runs of whitespace
	return strings.Join(strings.Fields(text), " ")
}

// Common English stopwords plus query filler seen in facility questions.
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
		"or", "this", "these", "those", "there", "what", "which",
		"do", "does", "any", "me", "i", "we", "our", "can", "how",
	}
}

// Package classifier maps query text to an intent with fixed keyword rules
// and pulls the specialty, region and facility it mentions out of the
// corpus vocabulary. Results depend only on the query and corpus snapshot.
package classifier

import (
	"sort"
	"strings"

	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/corpus"
	"github.com/xhad/carescope/pkg/processor"
)

// Rules lists the trigger words for each intent. Validation also needs a
// facility name from the corpus in the query. Regions are recognised in
// addition to those present in the corpus, so a query about a region with
// no facilities still resolves.
type Rules struct {
	Desert     []string
	Validation []string
	Search     []string
	Regions    []string
}

var DefaultRules = Rules{
	Desert: []string{
		"desert", "deserts", "lack", "lacks", "lacking", "gap", "gaps",
		"shortage", "shortages", "underserved", "scarcity", "no access",
	},
	Validation: []string{
		"validate", "validation", "verify", "check", "audit", "suspicious",
		"anomaly", "anomalies", "plausible", "legitimate",
	},
	Search: []string{
		"find", "search", "where", "which", "list", "show", "locate",
		"nearest", "near", "offer", "offers", "offering", "provide", "provides",
	},
	Regions: []string{
		"Ahafo", "Ashanti", "Bono", "Bono East", "Central", "Eastern",
		"Greater Accra", "North East", "Northern", "Oti", "Savannah",
		"Upper East", "Upper West", "Volta", "Western", "Western North",
	},
}

type Classification struct {
	Intent models.Intent `json:"intent"`
	// Rule is the trigger word that decided the intent, empty for general.
	Rule      string `json:"rule,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Region    string `json:"region,omitempty"`
	Facility  string `json:"facility,omitempty"`
}

type Classifier struct {
	rules Rules
}

func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

func Default() *Classifier { return New(DefaultRules) }

// Classify applies the rules in priority order: validation, desert,
// search, general. c may be nil, in which case nothing can be extracted and
// validation never fires.
func (cl *Classifier) Classify(query string, c *corpus.Corpus) Classification {
	text := normalizeQuery(query)
	out := Classification{
		Specialty: cl.ExtractSpecialty(query, c),
		Region:    cl.ExtractRegion(query, c),
	}
	if c != nil {
		if rec, ok := c.FindNameIn(query); ok {
			out.Facility = rec.Name
		}
	}

	if kw := firstMatch(text, cl.rules.Validation); kw != "" && out.Facility != "" {
		out.Intent, out.Rule = models.IntentValidation, kw
		return out
	}
	if kw := firstMatch(text, cl.rules.Desert); kw != "" {
		out.Intent, out.Rule = models.IntentDesertDetection, kw
		return out
	}
	if kw := firstMatch(text, cl.rules.Search); kw != "" {
		out.Intent, out.Rule = models.IntentSearch, kw
		return out
	}
	out.Intent = models.IntentGeneral
	return out
}

// ExtractSpecialty returns the specialty tag the query mentions, matching
// tags, their spelled-out form and common synonyms. The longest matching
// phrase wins. Tags present in the corpus are returned in corpus spelling.
func (cl *Classifier) ExtractSpecialty(query string, c *corpus.Corpus) string {
	text := normalizeQuery(query)

	known := make(map[string]string)
	for _, tag := range Flatten(1) {
		known[strings.ToLower(tag)] = tag
	}
	if c != nil {
		for _, tag := range c.Specialties() {
			known[strings.ToLower(tag)] = tag
		}
	}

	best, bestLen := "", 0
	consider := func(tag, phrase string) {
		phrase = strings.ToLower(phrase)
		if len(phrase) < bestLen || !processor.ContainsPhrase(text, phrase) {
			return
		}
		if len(phrase) > bestLen || tag < best {
			best, bestLen = tag, len(phrase)
		}
	}

	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tag := known[k]
		consider(tag, k)
		consider(tag, humanize(tag))
		for _, syn := range synonymIndex[k] {
			consider(tag, syn)
		}
	}
	return best
}

// ExtractRegion returns the region named in the query, longest first.
// Corpus spelling is preferred over the configured region list.
func (cl *Classifier) ExtractRegion(query string, c *corpus.Corpus) string {
	text := normalizeQuery(query)
	var candidates []string
	if c != nil {
		candidates = c.Regions()
	}
	candidates = append(candidates, cl.rules.Regions...)

	best := ""
	for _, region := range candidates {
		if len(region) <= len(best) {
			continue
		}
		if processor.ContainsPhrase(text, strings.ToLower(region)) {
			best = region
		}
	}
	return best
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func firstMatch(text string, words []string) string {
	for _, w := range words {
		if processor.ContainsPhrase(text, strings.ToLower(w)) {
			return w
		}
	}
	return ""
}

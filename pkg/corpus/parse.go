package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/models"
)

// aliases maps a canonical column to the keys accepted for it, in priority
// order. The camelCase names come from the scraped facility dataset.
var aliases = map[string][]string{
	"name":              {"name"},
	"region":            {"region", "address_stateOrRegion", "state"},
	"city":              {"city", "address_city"},
	"country":           {"country", "address_country"},
	"facility_type":     {"facility_type", "facilityTypeId", "type"},
	"organization_type": {"organization_type", "organizationType"},
	"specialties":       {"specialties"},
	"procedures":        {"procedures", "procedure"},
	"equipment":         {"equipment"},
	"capabilities":      {"capabilities", "capability"},
	"description":       {"description"},
	"phone":             {"phone", "officialPhone", "phone_numbers"},
	"email":             {"email"},
	"website":           {"website", "officialWebsite", "websites"},
	"source_url":        {"source_url", "sourceUrl", "url"},
	"doctor_count":      {"doctor_count", "numberDoctors"},
	"bed_capacity":      {"bed_capacity", "capacity"},
	"year_established":  {"year_established", "yearEstablished"},
}

var errUnterminated = errors.New("unterminated list")

func lookup(row Row, canonical string) (any, bool) {
	keys, ok := aliases[canonical]
	if !ok {
		keys = []string{canonical}
	}
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func normalize(rowID int, row Row) (models.FacilityRecord, []*errs.ParseError) {
	var issues []*errs.ParseError

	list := func(field string) []string {
		v, ok := lookup(row, field)
		if !ok {
			return nil
		}
		items, err := parseList(v)
		if err != nil {
			issues = append(issues, &errs.ParseError{RowID: rowID, Field: field, Value: scalar(v), Err: err})
			return nil
		}
		return items
	}
	text := func(field string) string {
		v, ok := lookup(row, field)
		if !ok {
			return ""
		}
		return stripHTML(scalar(v))
	}

	rec := models.FacilityRecord{
		RowID:            rowID,
		Name:             text("name"),
		Region:           text("region"),
		City:             text("city"),
		Country:          text("country"),
		FacilityType:     text("facility_type"),
		OrganizationType: text("organization_type"),
		Specialties:      normalizeTags(list("specialties")),
		Procedures:       list("procedures"),
		Equipment:        list("equipment"),
		Capabilities:     list("capabilities"),
		Description:      text("description"),
		SourceURL:        text("source_url"),
	}

	rec.Contact.Phones = dedupe(list("phone"))
	rec.Contact.Email = text("email")
	if sites := list("website"); len(sites) > 0 {
		rec.Contact.Website = sites[0]
	}

	for _, claim := range []string{models.ClaimDoctorCount, models.ClaimBedCapacity, models.ClaimYearEstablished} {
		if v, ok := lookup(row, claim); ok {
			if s := scalar(v); !isNullText(s) {
				if rec.Claims == nil {
					rec.Claims = make(map[string]string)
				}
				rec.Claims[claim] = s
			}
		}
	}

	return rec, issues
}

// parseList accepts native lists, JSON arrays, single-quoted arrays and
// plain text (one item).
func parseList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return cleanItems(t), nil
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			switch item.(type) {
			case nil, map[string]any, []any:
				continue
			}
			items = append(items, scalar(item))
		}
		return cleanItems(items), nil
	case string:
		return parseListText(t)
	default:
		return cleanItems([]string{scalar(t)}), nil
	}
}

func parseListText(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if isNullText(s) {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") {
		return cleanItems([]string{s}), nil
	}
	if !strings.HasSuffix(s, "]") {
		return nil, errUnterminated
	}

	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		return parseList(raw)
	}
	items, err := parseQuotedList(s[1 : len(s)-1])
	if err != nil {
		return nil, err
	}
	return cleanItems(items), nil
}

// parseQuotedList reads comma separated items wrapped in single or double
// quotes, with backslash escapes.
func parseQuotedList(inner string) ([]string, error) {
	var items []string
	r := []rune(inner)
	i := 0
	for {
		for i < len(r) && (r[i] == ' ' || r[i] == '\t' || r[i] == '\n') {
			i++
		}
		if i >= len(r) {
			return items, nil
		}
		quote := r[i]
		if quote != '\'' && quote != '"' {
			return nil, fmt.Errorf("unquoted item at offset %d", i)
		}
		i++
		var b strings.Builder
		closed := false
		for i < len(r) {
			c := r[i]
			if c == '\\' && i+1 < len(r) {
				b.WriteRune(r[i+1])
				i += 2
				continue
			}
			i++
			if c == quote {
				closed = true
				break
			}
			b.WriteRune(c)
		}
		if !closed {
			return nil, errUnterminated
		}
		items = append(items, b.String())

		for i < len(r) && (r[i] == ' ' || r[i] == '\t' || r[i] == '\n') {
			i++
		}
		if i >= len(r) {
			return items, nil
		}
		if r[i] != ',' {
			return nil, fmt.Errorf("expected ',' at offset %d", i)
		}
		i++
	}
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = stripHTML(item); !isNullText(item) {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeTags trims specialty tags, drops case-insensitive duplicates and
// sorts them so the set has one canonical order.
func normalizeTags(tags []string) []string {
	out := dedupe(tags)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// stripHTML reduces markup to its text content and collapses whitespace.
func stripHTML(s string) string {
	if strings.Contains(s, "<") && strings.Contains(s, ">") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func isNullText(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "nan", "none", "[]":
		return true
	}
	return false
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any, []string:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

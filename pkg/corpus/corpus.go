// Package corpus normalizes raw facility rows into an immutable, row-addressed
// snapshot. Row ids are assigned once at load and never reused.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xhad/carescope/internal/errs"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/models"
)

var errInvalidRowID = errors.New("invalid row id")

// Row is one raw input record keyed by column name.
type Row map[string]any

// RequiredColumns must be present in at least one row.
var RequiredColumns = []string{"name", "region"}

type Corpus struct {
	records     []models.FacilityRecord
	issues      []*errs.ParseError
	version     string
	regions     []string
	specialties []string
}

// Load normalizes rows into a Corpus. Row ids follow input order from 0
// unless every row carries an explicit row_id and together they form
// 0..n-1, in which case those ids are kept so reordering the input does not
// renumber anything. Unusable row_id cells and malformed list fields are
// recorded as issues; neither fails the load.
func Load(rows []Row) (*Corpus, error) {
	if len(rows) == 0 {
		return nil, &errs.SchemaError{}
	}
	for _, col := range RequiredColumns {
		if !anyHas(rows, col) {
			return nil, &errs.SchemaError{Field: col}
		}
	}

	ids, idIssues := assignRowIDs(rows)

	c := &Corpus{records: make([]models.FacilityRecord, len(rows)), issues: idIssues}
	for i, row := range rows {
		rec, issues := normalize(ids[i], row)
		c.records[ids[i]] = rec
		c.issues = append(c.issues, issues...)
	}
	sort.Slice(c.issues, func(i, j int) bool {
		if c.issues[i].RowID != c.issues[j].RowID {
			return c.issues[i].RowID < c.issues[j].RowID
		}
		return c.issues[i].Field < c.issues[j].Field
	})
	for _, issue := range c.issues {
		logger.Warn("%v", issue)
	}

	c.regions = distinct(c.records, func(r *models.FacilityRecord) []string { return []string{r.Region} })
	c.specialties = distinct(c.records, func(r *models.FacilityRecord) []string { return r.Specialties })
	c.version = fingerprint(c.records)

	logger.Info("loaded corpus %s: %d records, %d regions, %d parse issues",
		c.version[:12], len(c.records), len(c.regions), len(c.issues))
	return c, nil
}

func (c *Corpus) Len() int { return len(c.records) }

// Version is a content fingerprint; an unchanged snapshot always has the same version.
func (c *Corpus) Version() string { return c.version }

// Issues returns the per-field parse errors collected during Load.
func (c *Corpus) Issues() []*errs.ParseError {
	return append([]*errs.ParseError(nil), c.issues...)
}

// Record returns a copy of the record with the given row id.
func (c *Corpus) Record(rowID int) (models.FacilityRecord, bool) {
	if rowID < 0 || rowID >= len(c.records) {
		return models.FacilityRecord{}, false
	}
	return c.records[rowID].Clone(), true
}

// Records returns copies of all records in row id order.
func (c *Corpus) Records() []models.FacilityRecord {
	out := make([]models.FacilityRecord, len(c.records))
	for i := range c.records {
		out[i] = c.records[i].Clone()
	}
	return out
}

// Filter returns copies of the records matching keep, in row id order.
// keep must not modify the record it is given.
func (c *Corpus) Filter(keep func(r *models.FacilityRecord) bool) []models.FacilityRecord {
	var out []models.FacilityRecord
	for i := range c.records {
		if keep(&c.records[i]) {
			out = append(out, c.records[i].Clone())
		}
	}
	return out
}

// Count returns how many records match keep.
func (c *Corpus) Count(keep func(r *models.FacilityRecord) bool) int {
	n := 0
	for i := range c.records {
		if keep(&c.records[i]) {
			n++
		}
	}
	return n
}

// Regions lists distinct regions sorted case-insensitively.
func (c *Corpus) Regions() []string { return append([]string(nil), c.regions...) }

// Specialties lists distinct specialty tags sorted case-insensitively.
func (c *Corpus) Specialties() []string { return append([]string(nil), c.specialties...) }

func anyHas(rows []Row, canonical string) bool {
	for _, row := range rows {
		if _, ok := lookup(row, canonical); ok {
			return true
		}
	}
	return false
}

// assignRowIDs keeps explicit row_id values only when every row carries one
// and together they form 0..n-1. Otherwise ids follow input order and each
// unusable row_id cell is reported.
func assignRowIDs(rows []Row) ([]int, []*errs.ParseError) {
	ids := make([]int, len(rows))
	explicit := make([]int, len(rows))
	complete := true
	seen := make(map[int]bool, len(rows))
	var issues []*errs.ParseError
	for i, row := range rows {
		ids[i] = i
		v, ok := row["row_id"]
		if !ok || v == nil {
			complete = false
			continue
		}
		var reason error
		id, ok := toInt(v)
		switch {
		case !ok:
			reason = errInvalidRowID
		case id < 0 || id >= len(rows):
			reason = fmt.Errorf("%w: outside 0..%d", errInvalidRowID, len(rows)-1)
		case seen[id]:
			reason = fmt.Errorf("%w: duplicate %d", errInvalidRowID, id)
		}
		if reason != nil {
			complete = false
			issues = append(issues, &errs.ParseError{RowID: i, Field: "row_id", Value: fmt.Sprint(v), Err: reason})
			continue
		}
		seen[id] = true
		explicit[i] = id
	}
	if complete {
		return explicit, nil
	}
	return ids, issues
}

func distinct(records []models.FacilityRecord, values func(r *models.FacilityRecord) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range records {
		for _, v := range values(&records[i]) {
			key := strings.ToLower(v)
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

func fingerprint(records []models.FacilityRecord) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range records {
		_ = enc.Encode(&records[i])
	}
	return hex.EncodeToString(h.Sum(nil))
}

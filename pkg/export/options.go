package export

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/forensic-testing/fts-intake/pkg/models"
)

// Options collects the distinct non-empty values observed per filterable
// field across submitted records, for populating filter dropdowns.
type Options struct {
	schema *Schema
	values map[string]map[string]struct{}
}

// NewOptions creates an empty collector for the schema's fields.
func (s *Schema) NewOptions() *Options {
	o := &Options{schema: s, values: map[string]map[string]struct{}{}}
	for _, f := range s.Fields {
		o.values[f.OptionsKey] = map[string]struct{}{}
	}
	for _, d := range s.DrugFilters {
		o.values[d.OptionsKey] = map[string]struct{}{}
	}
	return o
}

// Add records q's values. Drafts are ignored.
func (o *Options) Add(q *models.Questionnaire) {
	if !strings.EqualFold(strings.TrimSpace(q.Status), models.StatusSubmitted) || q.Data == nil {
		return
	}
	for _, f := range o.schema.Fields {
		if v := norm(q.Data[f.Key]); v != "" {
			o.values[f.OptionsKey][v] = struct{}{}
		}
	}
	for _, d := range o.schema.DrugFilters {
		for _, name := range d.DrugNames(q.Data) {
			o.values[d.OptionsKey][name] = struct{}{}
		}
	}
}

// Result returns the sorted values keyed by options key. Every key is
// present, with an empty list when nothing was observed.
func (o *Options) Result() map[string][]string {
	out := make(map[string][]string, len(o.values))
	for key, set := range o.values {
		vals := lo.Keys(set)
		sort.Strings(vals)
		out[key] = vals
	}
	return out
}

// OwnerCounts are per-owner questionnaire tallies.
type OwnerCounts struct {
	Drafts      int `json:"drafts"`
	Submissions int `json:"submissions"`
}

// CountByOwner tallies drafts and submissions per owner key. Records with no
// owner or an unknown status are skipped.
func CountByOwner(items []models.QuestionnaireSummary) map[string]OwnerCounts {
	counts := map[string]OwnerCounts{}
	for _, item := range items {
		key := models.OwnerKey(item.OwnerUserID, item.OwnerEmail)
		if key == "" {
			continue
		}
		c := counts[key]
		switch strings.ToLower(strings.TrimSpace(item.Status)) {
		case models.StatusDraft:
			c.Drafts++
		case models.StatusSubmitted:
			c.Submissions++
		default:
			continue
		}
		counts[key] = c
	}
	return counts
}

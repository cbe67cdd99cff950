package export

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/forensic-testing/fts-intake/pkg/filters"
	"github.com/forensic-testing/fts-intake/pkg/models"
)

// ErrInvalidParam reports an export query parameter that cannot be used.
var ErrInvalidParam = errors.New("invalid export parameter")

const (
	ParamSubmittedFrom = "submitted_from"
	ParamSubmittedTo   = "submitted_to"
	ParamRules         = "rules"
)

// Params are the built-in export filters plus optional custom rules.
// The zero value selects every submitted record.
type Params struct {
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
	// Equals maps a data key to the exact (trimmed) value it must hold.
	// Keys outside the schema's fields are ignored.
	Equals map[string]string
	// Drugs maps a drug filter param to the drug name that must appear with the filter's status.
	Drugs map[string]string
	Rules []filters.Rule

	schema *Schema
}

// ParseParams reads export filters from query values. Unknown parameters are
// ignored. Empty values disable their filter.
func ParseParams(schema *Schema, q url.Values) (Params, error) {
	p := Params{
		Equals: map[string]string{},
		Drugs:  map[string]string{},
		schema: schema,
	}

	if v := strings.TrimSpace(q.Get(ParamSubmittedFrom)); v != "" {
		t, err := parseDay(v, false)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s: %v", ErrInvalidParam, ParamSubmittedFrom, err)
		}
		p.SubmittedFrom = &t
	}
	if v := strings.TrimSpace(q.Get(ParamSubmittedTo)); v != "" {
		t, err := parseDay(v, true)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s: %v", ErrInvalidParam, ParamSubmittedTo, err)
		}
		p.SubmittedTo = &t
	}

	for _, f := range schema.Fields {
		if v := q.Get(f.Key); v != "" {
			p.Equals[f.Key] = v
		}
	}
	for _, d := range schema.DrugFilters {
		if v := q.Get(d.Param); v != "" {
			p.Drugs[d.Param] = v
		}
	}

	if raw := strings.TrimSpace(q.Get(ParamRules)); raw != "" {
		rules, err := filters.ParseRules([]byte(raw))
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s: %v", ErrInvalidParam, ParamRules, err)
		}
		p.Rules = rules
	}

	return p, nil
}

// Values returns every user-supplied string value, for audit screening.
func (p Params) Values() map[string]string {
	out := make(map[string]string, len(p.Equals)+len(p.Drugs))
	for k, v := range p.Equals {
		out[k] = v
	}
	for k, v := range p.Drugs {
		out[k] = v
	}
	return out
}

// Match applies the built-in filters and then the custom rules to q.
// Only submitted records with a submission time can match.
func (p Params) Match(q *models.Questionnaire) (bool, error) {
	if !strings.EqualFold(strings.TrimSpace(q.Status), models.StatusSubmitted) || q.SubmittedAt == nil {
		return false, nil
	}
	submittedAt := *q.SubmittedAt
	if p.SubmittedFrom != nil && submittedAt.Before(*p.SubmittedFrom) {
		return false, nil
	}
	if p.SubmittedTo != nil && submittedAt.After(*p.SubmittedTo) {
		return false, nil
	}

	data := q.Data
	if data == nil {
		data = map[string]any{}
	}
	for key, want := range p.Equals {
		if p.schema != nil {
			if _, ok := p.schema.Field(key); !ok {
				continue
			}
		}
		if norm(data[key]) != want {
			return false, nil
		}
	}
	if p.schema != nil {
		for param, name := range p.Drugs {
			d, ok := p.schema.DrugFilter(param)
			if !ok {
				continue
			}
			if !containsString(d.DrugNames(data), name) {
				return false, nil
			}
		}
	}

	if len(p.Rules) == 0 {
		return true, nil
	}
	return filters.MatchAll(q.AsMap(), p.Rules)
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// parseDay accepts YYYY-MM-DD or a full RFC 3339 timestamp and expands it
// to the start or end of that day. Dates without a zone are UTC.
func parseDay(s string, endOfDay bool) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		t, err = time.Parse(layout, s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}

	y, m, d := t.Date()
	if endOfDay {
		t = time.Date(y, m, d, 23, 59, 59, 999999000, t.Location())
	} else {
		t = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
	return t.UTC(), nil
}

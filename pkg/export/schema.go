package export

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
)

//go:embed fields.yaml
var fieldsYAML []byte

// Field kinds.
const (
	KindText  = "text"
	KindYesNo = "yesno"
)

// Field is a filterable top-level key of questionnaire data.
type Field struct {
	Key        string `yaml:"key" json:"key"`
	Label      string `yaml:"label" json:"label"`
	Kind       string `yaml:"kind" json:"kind"`
	OptionsKey string `yaml:"options_key" json:"options_key"`
}

// DrugFilter matches records holding a list entry with a given drug name and status.
type DrugFilter struct {
	Param         string `yaml:"param" json:"param"`
	List          string `yaml:"list" json:"list"`
	Status        string `yaml:"status" json:"status"`
	OptionsKey    string `yaml:"options_key" json:"options_key"`
	SummaryColumn string `yaml:"summary_column" json:"summary_column"`
}

// Schema enumerates the filterable fields the admin tools understand.
type Schema struct {
	Fields      []Field      `yaml:"fields" json:"fields"`
	DrugFilters []DrugFilter `yaml:"drug_filters" json:"drug_filters"`
}

// LoadSchema parses the embedded field schema.
func LoadSchema() (*Schema, error) {
	return ParseSchema(fieldsYAML)
}

// ParseSchema parses a field schema document.
func ParseSchema(raw []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse field schema: %w", err)
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Key == "" {
			return nil, fmt.Errorf("field schema: field %d has no key", i)
		}
		if f.OptionsKey == "" {
			f.OptionsKey = f.Key
		}
		if f.Kind == "" {
			f.Kind = KindText
		}
	}
	for i, d := range s.DrugFilters {
		if d.Param == "" || d.List == "" || d.Status == "" {
			return nil, fmt.Errorf("field schema: drug filter %d is incomplete", i)
		}
	}
	return &s, nil
}

// Field returns the field with the given key.
func (s *Schema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// DrugFilter returns the drug filter with the given query parameter name.
func (s *Schema) DrugFilter(param string) (DrugFilter, bool) {
	for _, d := range s.DrugFilters {
		if d.Param == param {
			return d, true
		}
	}
	return DrugFilter{}, false
}

// DrugNames returns the trimmed, non-empty drug names in data[d.List] whose
// status matches d.Status case-insensitively. Order follows the list.
func (d DrugFilter) DrugNames(data map[string]any) []string {
	items, ok := data[d.List].([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if !strings.EqualFold(norm(entry["status"]), d.Status) {
			continue
		}
		if name := norm(entry["drug_name"]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// norm renders a value as trimmed text.
func norm(v any) string {
	return strings.TrimSpace(jsonutil.StringValue(v))
}

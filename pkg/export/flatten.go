package export

import (
	"strings"

	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
)

// DefaultSensitiveFields are data keys never written to an export.
var DefaultSensitiveFields = []string{
	"client_signature_png",
	"collector_signature_png",
	"refusal_signature_png",
	"client_print_name",
	"client_signature_date",
	"collector_print_name",
	"collector_signature_date",
	"refusal_print_name",
	"refusal_signature_date",
}

// BaseColumns are always present in a CSV export, even with no matching rows.
var BaseColumns = []string{
	"id",
	"case_number",
	"version",
	"status",
	"created_at",
	"updated_at",
	"submitted_at",
	"redo_of_id",
}

// SummaryColumns lead every summary row produced by FlattenRecord.
var SummaryColumns = []string{
	"case_number",
	"id",
	"version",
	"status",
	"submitted_at",
	"updated_at",
	"created_at",
}

// StripSensitive returns a copy of doc whose "data" object lacks the given keys.
// doc itself is left untouched.
func StripSensitive(doc map[string]any, sensitive []string) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	data, _ := doc["data"].(map[string]any)
	clean := make(map[string]any, len(data))
	for k, v := range data {
		clean[k] = v
	}
	for _, k := range sensitive {
		delete(clean, k)
	}
	out["data"] = clean
	return out
}

// Flatten turns nested objects into a single level keyed by dot-joined
// paths. Arrays are kept whole as JSON text. Scalars keep their type.
func Flatten(v any) map[string]any {
	out := map[string]any{}
	flattenInto(out, "", v)
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(out, key, child)
		}
	case []any:
		out[prefix] = jsonutil.Dumps(val)
	default:
		out[prefix] = val
	}
}

// CSVRow builds the export row for a stripped record document: the base
// columns plus every flattened data path prefixed with "data.".
func CSVRow(doc map[string]any) map[string]any {
	row := make(map[string]any, len(BaseColumns))
	for _, col := range BaseColumns {
		row[col] = doc[col]
	}
	data, _ := doc["data"].(map[string]any)
	for k, v := range Flatten(data) {
		row["data."+k] = v
	}
	return row
}

// FlattenRecord builds a summary row for a stripped record document. It
// holds the summary columns, one derived column per drug filter listing the
// matching drug names, and the selected data columns. Columns are given as
// "data.<key>"; other entries are ignored. With no columns every top-level
// data key is included. Nested values are rendered as JSON text.
func (s *Schema) FlattenRecord(doc map[string]any, columns []string) map[string]any {
	row := make(map[string]any, len(SummaryColumns)+len(columns))
	for _, col := range SummaryColumns {
		row[col] = doc[col]
	}

	data, _ := doc["data"].(map[string]any)
	for _, d := range s.DrugFilters {
		if d.SummaryColumn != "" {
			row[d.SummaryColumn] = strings.Join(d.DrugNames(data), ", ")
		}
	}

	if len(columns) > 0 {
		for _, col := range columns {
			key, ok := strings.CutPrefix(col, "data.")
			if !ok || key == "" {
				continue
			}
			row[key] = cell(data[key])
		}
		return row
	}

	for k, v := range data {
		row[k] = cell(v)
	}
	return row
}

// cell renders a value for a flat table.
func cell(v any) string {
	return jsonutil.StringValue(v)
}

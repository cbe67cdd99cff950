package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/samber/lo"

	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
)

// Formats supported by the export endpoints.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ContentType returns the response media type for a format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// SortedHeaders returns the lexicographically sorted union of the keys of
// all rows and the given always-present columns.
func SortedHeaders(rows []map[string]any, always []string) []string {
	keys := append([]string{}, always...)
	for _, row := range rows {
		keys = append(keys, lo.Keys(row)...)
	}
	headers := lo.Uniq(keys)
	sort.Strings(headers)
	return headers
}

// OrderedHeaders returns leading columns in their given order followed by
// the remaining row keys sorted.
func OrderedHeaders(rows []map[string]any, leading []string) []string {
	seen := lo.Associate(leading, func(col string) (string, struct{}) { return col, struct{}{} })
	var rest []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append(append([]string{}, leading...), rest...)
}

// WriteCSV writes rows under headers. Missing cells are empty.
func WriteCSV(w io.Writer, headers []string, rows []map[string]any) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = jsonutil.StringValue(row[h])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes docs as a pretty-printed JSON array.
func WriteJSON(w io.Writer, docs []map[string]any) error {
	if docs == nil {
		docs = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode json export: %w", err)
	}
	return nil
}

package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/blob"
	"github.com/forensic-testing/fts-intake/pkg/export"
	"github.com/forensic-testing/fts-intake/pkg/filters"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/repositories"
)

// Export file names offered to the browser.
const (
	exportBaseName = "submitted_questionnaires"
	searchBaseName = "questionnaire_search"
)

// Search status selectors.
const (
	SearchStatusAll = "all"
)

// ExportResult is a rendered export, ready to be written to a response.
type ExportResult struct {
	Format      string
	Filename    string
	ContentType string
	Body        []byte
	Count       int
	// ArchiveKey names the archived copy; empty when archiving is disabled.
	ArchiveKey string
}

// SearchRequest selects records with filter rules and picks the data
// columns of the summary rows.
type SearchRequest struct {
	Rules []filters.Rule `json:"rules"`
	// Columns are "data.<key>" names; empty includes every top-level data key.
	Columns []string `json:"columns"`
	// Status is "submitted" (default), "draft" or "all".
	Status string `json:"status"`
	// Limit caps the rows returned by Search; 0 means no limit.
	Limit int `json:"limit"`
	// Format is "csv" (default) or "json", used by ExportSearch.
	Format string `json:"format"`
}

// SearchResult is the response of a rule-based search.
type SearchResult struct {
	Count   int              `json:"count"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ExportService implements the admin filter and export tools.
type ExportService interface {
	Schema() *export.Schema
	// ParseParams validates export query parameters against the field schema.
	ParseParams(q url.Values) (export.Params, error)
	Options(ctx context.Context) (map[string][]string, error)
	Export(ctx context.Context, format string, params export.Params) (*ExportResult, error)
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	ExportSearch(ctx context.Context, req SearchRequest) (*ExportResult, error)
	OwnerCounts(ctx context.Context) (map[string]export.OwnerCounts, error)
	ArchiveEnabled() bool
	ListArchives(ctx context.Context) ([]blob.ArchiveEntry, error)
	OpenArchive(ctx context.Context, name string) (*ExportResult, error)
}

// ExportRecorder counts exported records in addition to operation outcomes.
type ExportRecorder interface {
	AddExported(format string, n int)
}

type exportService struct {
	repo      repositories.QuestionnaireRepository
	schema    *export.Schema
	sensitive []string
	archive   *blob.Archive
	exported  ExportRecorder
	logger    *zap.Logger
}

// NewExportService creates an ExportService. archive and exported may be nil.
func NewExportService(
	repo repositories.QuestionnaireRepository,
	schema *export.Schema,
	sensitiveFields []string,
	archive *blob.Archive,
	exported ExportRecorder,
	logger *zap.Logger,
) ExportService {
	if len(sensitiveFields) == 0 {
		sensitiveFields = export.DefaultSensitiveFields
	}
	return &exportService{
		repo:      repo,
		schema:    schema,
		sensitive: sensitiveFields,
		archive:   archive,
		exported:  exported,
		logger:    logger,
	}
}

var _ ExportService = (*exportService)(nil)

func (s *exportService) Schema() *export.Schema {
	return s.schema
}

func (s *exportService) ParseParams(q url.Values) (export.Params, error) {
	params, err := export.ParseParams(s.schema, q)
	if err != nil {
		return export.Params{}, apperrors.Validation("invalid_filter", "%s", err.Error())
	}
	return params, nil
}

// scan visits records with the given status, skipping and logging those
// whose payload cannot be decoded.
func (s *exportService) scan(ctx context.Context, status string, fn func(q *models.Questionnaire)) error {
	return s.repo.Scan(ctx, status, func(q *models.Questionnaire, err error) {
		if err != nil {
			s.logger.Warn("Skipping unreadable questionnaire",
				zap.String("id", q.ID.String()),
				zap.Error(err))
			return
		}
		fn(q)
	})
}

func (s *exportService) Options(ctx context.Context) (map[string][]string, error) {
	opts := s.schema.NewOptions()
	if err := s.scan(ctx, models.StatusSubmitted, opts.Add); err != nil {
		return nil, err
	}
	return opts.Result(), nil
}

func (s *exportService) Export(ctx context.Context, format string, params export.Params) (*ExportResult, error) {
	if format != export.FormatCSV && format != export.FormatJSON {
		return nil, apperrors.Validation("invalid_format", "Unsupported export format %q", format)
	}

	var docs []map[string]any
	var matchErr error
	err := s.scan(ctx, models.StatusSubmitted, func(q *models.Questionnaire) {
		if matchErr != nil {
			return
		}
		ok, err := params.Match(q)
		if err != nil {
			matchErr = err
			return
		}
		if ok {
			docs = append(docs, export.StripSensitive(q.AsMap(), s.sensitive))
		}
	})
	if err != nil {
		return nil, err
	}
	if matchErr != nil {
		return nil, filterError(matchErr)
	}

	var buf bytes.Buffer
	switch format {
	case export.FormatCSV:
		rows := make([]map[string]any, 0, len(docs))
		for _, doc := range docs {
			rows = append(rows, export.CSVRow(doc))
		}
		err = export.WriteCSV(&buf, export.SortedHeaders(rows, export.BaseColumns), rows)
	default:
		err = export.WriteJSON(&buf, docs)
	}
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, exportBaseName, format, buf.Bytes(), len(docs))
}

func (s *exportService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	rows, err := s.searchRows(ctx, req)
	if err != nil {
		return nil, err
	}
	count := len(rows)
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return &SearchResult{
		Count:   count,
		Columns: export.OrderedHeaders(rows, s.summaryColumns()),
		Rows:    rows,
	}, nil
}

func (s *exportService) ExportSearch(ctx context.Context, req SearchRequest) (*ExportResult, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatJSON {
		return nil, apperrors.Validation("invalid_format", "Unsupported export format %q", req.Format)
	}

	rows, err := s.searchRows(ctx, req)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if format == export.FormatCSV {
		err = export.WriteCSV(&buf, export.OrderedHeaders(rows, s.summaryColumns()), rows)
	} else {
		err = export.WriteJSON(&buf, rows)
	}
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, searchBaseName, format, buf.Bytes(), len(rows))
}

// summaryColumns are the leading columns of every summary row.
func (s *exportService) summaryColumns() []string {
	cols := append([]string{}, export.SummaryColumns...)
	for _, d := range s.schema.DrugFilters {
		if d.SummaryColumn != "" {
			cols = append(cols, d.SummaryColumn)
		}
	}
	return cols
}

func (s *exportService) searchRows(ctx context.Context, req SearchRequest) ([]map[string]any, error) {
	if err := filters.Validate(req.Rules); err != nil {
		return nil, filterError(err)
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "":
		status = models.StatusSubmitted
	case SearchStatusAll:
		status = ""
	case models.StatusDraft, models.StatusSubmitted:
	default:
		return nil, apperrors.Validation("invalid_status", "status must be draft, submitted or all")
	}

	var docs []map[string]any
	err := s.scan(ctx, status, func(q *models.Questionnaire) {
		docs = append(docs, q.AsMap())
	})
	if err != nil {
		return nil, err
	}

	matched, err := filters.Apply(docs, req.Rules)
	if err != nil {
		return nil, filterError(err)
	}

	rows := make([]map[string]any, 0, len(matched))
	for _, doc := range matched {
		rows = append(rows, s.schema.FlattenRecord(export.StripSensitive(doc, s.sensitive), req.Columns))
	}
	return rows, nil
}

// finish counts, archives and packages a rendered export.
func (s *exportService) finish(ctx context.Context, baseName, format string, body []byte, count int) (*ExportResult, error) {
	result := &ExportResult{
		Format:      format,
		Filename:    baseName + "." + format,
		ContentType: export.ContentType(format),
		Body:        body,
		Count:       count,
	}

	if s.exported != nil {
		s.exported.AddExported(format, count)
	}

	if s.archive != nil {
		info, err := s.archive.Save(ctx, format, result.ContentType, body, map[string]string{
			"count": strconv.Itoa(count),
		})
		if err != nil {
			return nil, err
		}
		result.ArchiveKey = strings.TrimPrefix(info.Key, blob.ArchivePrefix)
	}

	s.logger.Info("Export generated",
		zap.String("format", format),
		zap.Int("count", count),
		zap.Int("bytes", len(body)),
		zap.String("archive_key", result.ArchiveKey))
	return result, nil
}

func (s *exportService) OwnerCounts(ctx context.Context) (map[string]export.OwnerCounts, error) {
	index, err := s.repo.ListIndex(ctx)
	if err != nil {
		return nil, err
	}
	return export.CountByOwner(index), nil
}

func (s *exportService) ArchiveEnabled() bool {
	return s.archive != nil
}

func archiveDisabled() error {
	return apperrors.NotFound("archive_disabled", "Export archiving is not enabled")
}

func (s *exportService) ListArchives(ctx context.Context) ([]blob.ArchiveEntry, error) {
	if s.archive == nil {
		return nil, archiveDisabled()
	}
	return s.archive.List(ctx)
}

func (s *exportService) OpenArchive(ctx context.Context, name string) (*ExportResult, error) {
	if s.archive == nil {
		return nil, archiveDisabled()
	}
	info, body, err := s.archive.Open(ctx, name)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrBadKey):
			return nil, apperrors.Validation("invalid_archive_name", "Invalid archive name %q", name)
		case errors.Is(err, blob.ErrNotFound):
			return nil, apperrors.NotFound("archive_not_found", "Archived export %s not found", name)
		}
		return nil, fmt.Errorf("failed to open archived export: %w", err)
	}

	format := strings.TrimPrefix(path.Ext(name), ".")
	contentType := info.ContentType
	if contentType == "" {
		contentType = export.ContentType(format)
	}
	count, _ := strconv.Atoi(info.Metadata["count"])
	return &ExportResult{
		Format:      format,
		Filename:    name,
		ContentType: contentType,
		Body:        body,
		Count:       count,
		ArchiveKey:  name,
	}, nil
}

// filterError turns a rule evaluation failure into a validation error.
func filterError(err error) error {
	return apperrors.Validation("invalid_filter", "%s", err.Error())
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/audit"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/blob"
	"github.com/forensic-testing/fts-intake/pkg/export"
	"github.com/forensic-testing/fts-intake/pkg/filters"
	"github.com/forensic-testing/fts-intake/pkg/services"
)

// Export response headers.
const (
	HeaderExportCount      = "X-Export-Count"
	HeaderExportArchiveKey = "X-Export-Archive-Key"
)

// ArchiveListResponse is the body of GET /api/admin/export/archives.
type ArchiveListResponse struct {
	Archives []blob.ArchiveEntry `json:"archives"`
}

// AdminExportHandler serves the admin filter, search and export tools.
type AdminExportHandler struct {
	service services.ExportService
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewAdminExportHandler creates a new admin export handler.
func NewAdminExportHandler(service services.ExportService, auditor *audit.SecurityAuditor, logger *zap.Logger) *AdminExportHandler {
	return &AdminExportHandler{service: service, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the admin export routes. All require an admin.
func (h *AdminExportHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/admin/export/options", authMiddleware.RequireAdmin(h.Options))
	mux.HandleFunc("GET /api/admin/export/json", authMiddleware.RequireAdmin(h.exportAs(export.FormatJSON)))
	mux.HandleFunc("GET /api/admin/export/csv", authMiddleware.RequireAdmin(h.exportAs(export.FormatCSV)))
	mux.HandleFunc("GET /api/admin/export/archives", authMiddleware.RequireAdmin(h.ListArchives))
	mux.HandleFunc("GET /api/admin/export/archives/{name}", authMiddleware.RequireAdmin(h.GetArchive))

	mux.HandleFunc("GET /api/admin/questionnaires/schema", authMiddleware.RequireAdmin(h.Schema))
	mux.HandleFunc("POST /api/admin/questionnaires/search", authMiddleware.RequireAdmin(h.Search))
	mux.HandleFunc("POST /api/admin/questionnaires/export", authMiddleware.RequireAdmin(h.ExportSearch))
}

// Options handles GET /api/admin/export/options
// Dropdown values are derived from submitted records only.
func (h *AdminExportHandler) Options(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Options(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger, "export options")
		return
	}
	if err := WriteJSON(w, http.StatusOK, opts); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *AdminExportHandler) exportAs(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Export(w, r, format)
	}
}

// Export handles GET /api/admin/export/json and GET /api/admin/export/csv
func (h *AdminExportHandler) Export(w http.ResponseWriter, r *http.Request, format string) {
	params, err := h.service.ParseParams(r.URL.Query())
	if err != nil {
		WriteServiceError(w, err, h.logger, "parse export params")
		return
	}
	if h.rejectInjection(w, r, params.Values()) {
		return
	}

	result, err := h.service.Export(r.Context(), format, params)
	if err != nil {
		WriteServiceError(w, err, h.logger, "export questionnaires")
		return
	}

	h.auditor.LogExport(r.Context(), audit.ExportDetails{
		Format:  result.Format,
		Count:   result.Count,
		Filters: params.Values(),
		Archive: result.ArchiveKey,
	}, clientIP(r))
	h.writeFile(w, result)
}

// Schema handles GET /api/admin/questionnaires/schema
func (h *AdminExportHandler) Schema(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.service.Schema()); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Search handles POST /api/admin/questionnaires/search
func (h *AdminExportHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req services.SearchRequest
	if !decodeBody(w, r, &req, true, h.logger) {
		return
	}
	if h.rejectInjection(w, r, ruleValues(req.Rules)) {
		return
	}

	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, h.logger, "search questionnaires")
		return
	}
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ExportSearch handles POST /api/admin/questionnaires/export
func (h *AdminExportHandler) ExportSearch(w http.ResponseWriter, r *http.Request) {
	var req services.SearchRequest
	if !decodeBody(w, r, &req, true, h.logger) {
		return
	}
	values := ruleValues(req.Rules)
	if h.rejectInjection(w, r, values) {
		return
	}

	result, err := h.service.ExportSearch(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, h.logger, "export search")
		return
	}

	h.auditor.LogExport(r.Context(), audit.ExportDetails{
		Format:  result.Format,
		Count:   result.Count,
		Filters: values,
		Archive: result.ArchiveKey,
	}, clientIP(r))
	h.writeFile(w, result)
}

// ListArchives handles GET /api/admin/export/archives
func (h *AdminExportHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListArchives(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger, "list archives")
		return
	}
	if entries == nil {
		entries = []blob.ArchiveEntry{}
	}
	if err := WriteJSON(w, http.StatusOK, ArchiveListResponse{Archives: entries}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// GetArchive handles GET /api/admin/export/archives/{name}
func (h *AdminExportHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.OpenArchive(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteServiceError(w, err, h.logger, "open archive")
		return
	}
	h.writeFile(w, result)
}

func (h *AdminExportHandler) writeFile(w http.ResponseWriter, result *services.ExportResult) {
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set(HeaderExportCount, strconv.Itoa(result.Count))
	if result.ArchiveKey != "" {
		w.Header().Set(HeaderExportArchiveKey, result.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Body); err != nil {
		h.logger.Error("Failed to write export body", zap.Error(err))
	}
}

// rejectInjection screens free-text filter values. A hit is audited and
// answered with 400 rejected_filter_value.
func (h *AdminExportHandler) rejectInjection(w http.ResponseWriter, r *http.Request, values map[string]string) bool {
	hits := audit.ScreenValues(values)
	if len(hits) == 0 {
		return false
	}
	for _, hit := range hits {
		h.auditor.LogInjectionAttempt(r.Context(), hit, clientIP(r))
	}
	if err := ErrorResponse(w, http.StatusBadRequest, "rejected_filter_value",
		fmt.Sprintf("Filter value for %s was rejected", hits[0].ParamName)); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
	return true
}

// ruleValues collects the string operands of rules, keyed by their position.
func ruleValues(rules []filters.Rule) map[string]string {
	out := map[string]string{}
	collectRuleValues(out, "rules", rules)
	return out
}

func collectRuleValues(out map[string]string, prefix string, rules []filters.Rule) {
	for i, rule := range rules {
		key := fmt.Sprintf("%s[%d]", prefix, i)
		switch v := rule.Value.(type) {
		case string:
			out[key+".value"] = v
		case []any:
			for j, item := range v {
				if s, ok := item.(string); ok {
					out[fmt.Sprintf("%s.value[%d]", key, j)] = s
				}
			}
		}
		if rule.Any != nil {
			collectRuleValues(out, key+".any.where", rule.Any.Where)
		}
	}
}

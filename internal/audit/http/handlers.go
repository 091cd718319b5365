package audithttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/platform/httpx"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 50
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRangeDays = 90
)

// Handler serves the admin audit trail.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
	now     func() time.Time
}

// NewHandler builds an audit trail handler.
func NewHandler(logger *slog.Logger, service *audit.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.parseFilters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Trail(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit trail", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load audit trail")
		return
	}
	httpx.OK(w, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.parseFilters(w, r)
	if !ok {
		return
	}
	events, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit trail", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to export audit trail")
		return
	}
	csvBytes, err := audit.WriteCSV(events)
	if err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode export")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(w http.ResponseWriter, r *http.Request) (audit.Filters, bool) {
	query := r.URL.Query()
	now := h.now().UTC()

	toStr := strings.TrimSpace(query.Get("to"))
	if toStr == "" {
		toStr = now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid to date")
		return audit.Filters{}, false
	}
	fromStr := strings.TrimSpace(query.Get("from"))
	if fromStr == "" {
		fromStr = to.Add(-defaultDateRange).Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid from date")
		return audit.Filters{}, false
	}
	if from.After(to) || to.Sub(from) > maxDateRangeDays*24*time.Hour {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid date range")
		return audit.Filters{}, false
	}

	filters := audit.Filters{
		From:     from,
		To:       to,
		Action:   strings.TrimSpace(query.Get("action")),
		Page:     1,
		PageSize: defaultPageSize,
	}
	if v := strings.TrimSpace(query.Get("user_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user_id")
			return audit.Filters{}, false
		}
		filters.UserID = id
	}
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page <= 0 {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid page")
			return audit.Filters{}, false
		}
		filters.Page = page
	}
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid page_size")
			return audit.Filters{}, false
		}
		if size > maxPageSize {
			size = maxPageSize
		}
		filters.PageSize = size
	}
	return filters, true
}

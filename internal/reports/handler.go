package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/powerdeck/powerdeck/internal/authz"
	"github.com/powerdeck/powerdeck/internal/platform/httpx"
	"github.com/powerdeck/powerdeck/internal/shared"
)

// Handler serves the power report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers report routes with per-method role requirements.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Authenticated())
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.OperatorOrAdmin())
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.AdminOnly())
		r.Delete("/{id}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list reports", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list reports")
		return
	}
	if reports == nil {
		reports = []Report{}
	}
	httpx.OK(w, reports)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	report, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "report not found")
			return
		}
		h.logger.Error("get report", slog.Int64("report_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load report")
		return
	}
	httpx.OK(w, report)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid report payload")
		return
	}
	report, err := h.service.Create(r.Context(), actorID(r), input)
	if err != nil {
		if errors.Is(err, ErrInvalidPeriod) {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "period end before start")
			return
		}
		h.logger.Error("create report", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create report")
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Success: true, Data: report})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid report payload")
		return
	}
	report, err := h.service.Update(r.Context(), actorID(r), id, input)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "report not found")
			return
		}
		h.logger.Error("update report", slog.Int64("report_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update report")
		return
	}
	httpx.OK(w, report)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorID(r), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "report not found")
			return
		}
		h.logger.Error("delete report", slog.Int64("report_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete report")
		return
	}
	httpx.OK(w, map[string]bool{"deleted": true})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	if principal := authz.PrincipalFromContext(r.Context()); principal != nil {
		return principal.ID
	}
	return 0
}

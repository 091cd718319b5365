package powerunits

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

// Handler serves the power unit endpoints.
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

// MountRoutes registers power unit routes with per-method role requirements.
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
		r.Put("/{id}/status", h.setStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.AdminOnly())
		r.Delete("/{id}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list power units", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list power units")
		return
	}
	if units == nil {
		units = []PowerUnit{}
	}
	httpx.OK(w, units)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	unit, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get power unit", id, err)
		return
	}
	httpx.OK(w, unit)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if !h.decode(w, r, &input) {
		return
	}
	unit, err := h.service.Create(r.Context(), h.actorID(r), input)
	if err != nil {
		h.respondError(w, "create power unit", 0, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Success: true, Data: unit})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var input UpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	unit, err := h.service.Update(r.Context(), h.actorID(r), id, input)
	if err != nil {
		h.respondError(w, "update power unit", id, err)
		return
	}
	httpx.OK(w, unit)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var input StatusInput
	if !h.decode(w, r, &input) {
		return
	}
	unit, err := h.service.SetStatus(r.Context(), h.actorID(r), id, Status(input.Status))
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown status")
			return
		}
		h.respondError(w, "set power unit status", id, err)
		return
	}
	httpx.OK(w, unit)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), h.actorID(r), id); err != nil {
		h.respondError(w, "delete power unit", id, err)
		return
	}
	httpx.OK(w, map[string]bool{"deleted": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid power unit payload")
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, message string, id int64, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "power unit not found")
		return
	}
	h.logger.Error(message, slog.Int64("unit_id", id), slog.Any("error", err))
	httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "power unit operation failed")
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) actorID(r *http.Request) int64 {
	if principal := authz.PrincipalFromContext(r.Context()); principal != nil {
		return principal.ID
	}
	return 0
}

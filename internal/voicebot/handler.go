package voicebot

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

// Handler serves the voicebot call endpoints.
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

// MountRoutes registers voicebot call routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Authenticated())
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.OperatorOrAdmin())
		r.Post("/", h.ingest)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.AdminOnly())
		r.Delete("/{id}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	calls, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list voicebot calls", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list calls")
		return
	}
	if calls == nil {
		calls = []Call{}
	}
	httpx.OK(w, calls)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	call, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "call not found")
			return
		}
		h.logger.Error("get voicebot call", slog.Int64("call_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load call")
		return
	}
	httpx.OK(w, call)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var input IngestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid call payload")
		return
	}
	call, err := h.service.Ingest(r.Context(), h.actorID(r), input)
	if err != nil {
		h.logger.Error("ingest voicebot call", slog.Any("error", err))
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not record call")
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Success: true, Data: call})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), h.actorID(r), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "call not found")
			return
		}
		h.logger.Error("delete voicebot call", slog.Int64("call_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete call")
		return
	}
	httpx.OK(w, map[string]bool{"deleted": true})
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

package users

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

// Handler manages user administration endpoints. All routes are admin-only,
// enforced by the router-level middleware.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Put("/{id}/role", h.updateRole)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list users")
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.OK(w, users)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user payload")
		return
	}
	user, err := h.service.Create(r.Context(), h.actorID(r), input)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.Error(w, http.StatusConflict, "DUPLICATE", "email already in use")
			return
		}
		h.logger.Error("create user", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create user")
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Success: true, Data: user})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN OPERATOR VIEWER"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "role must be ADMIN, OPERATOR or VIEWER")
		return
	}
	user, err := h.service.UpdateRole(r.Context(), h.actorID(r), id, req.Role)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		h.logger.Error("update role", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update role")
		return
	}
	httpx.OK(w, user)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(r.Context(), h.actorID(r), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		h.logger.Error("delete user", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete user")
		return
	}
	httpx.OK(w, map[string]bool{"deleted": true})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
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

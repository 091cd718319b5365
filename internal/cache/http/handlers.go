package cachehttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/powerdeck/powerdeck/internal/cache"
	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/platform/httpx"
	"github.com/powerdeck/powerdeck/internal/resilience"
)

// WarmFunc re-primes the cache with the application's hot entries.
type WarmFunc func(ctx context.Context) error

// Handler exposes the admin cache management endpoints.
type Handler struct {
	logger   *slog.Logger
	cache    *cache.Cache
	store    *kvstore.Store
	breakers *resilience.Registry
	retry    *resilience.Executor
	warm     WarmFunc
}

// NewHandler builds the cache admin handler. Warm may be nil.
func NewHandler(logger *slog.Logger, cacheLayer *cache.Cache, store *kvstore.Store, breakers *resilience.Registry, retry *resilience.Executor, warm WarmFunc) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, cache: cacheLayer, store: store, breakers: breakers, retry: retry, warm: warm}
}

// Routes mounts the admin cache endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", h.handleStats)
	r.Post("/clear", h.handleClear)
	r.Post("/invalidate", h.handleInvalidateKey)
	r.Post("/invalidate-tags", h.handleInvalidateTags)
	r.Post("/invalidate-pattern", h.handleInvalidatePattern)
	r.Post("/warm", h.handleWarm)
	return r
}

type statsResponse struct {
	Cache    cache.Stats                          `json:"cache"`
	Store    kvstore.Stats                        `json:"store"`
	Breakers []resilience.BreakerSnapshot         `json:"breakers"`
	Retries  map[string]resilience.OperationStats `json:"retries"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Cache:   h.cache.Stats(),
		Retries: map[string]resilience.OperationStats{},
	}
	if h.store != nil {
		resp.Store = h.store.Stats(r.Context())
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Snapshots()
	}
	if h.retry != nil {
		resp.Retries = h.retry.AllStats()
	}
	httpx.OK(w, resp)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear(r.Context())
	h.logger.Info("cache cleared by admin")
	httpx.OK(w, map[string]bool{"cleared": true})
}

type invalidateKeyRequest struct {
	Key string `json:"key"`
}

func (h *Handler) handleInvalidateKey(w http.ResponseWriter, r *http.Request) {
	var req invalidateKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Key == "" {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "key is required")
		return
	}
	h.cache.InvalidateKey(r.Context(), req.Key)
	httpx.OK(w, map[string]bool{"invalidated": true})
}

type invalidateTagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *Handler) handleInvalidateTags(w http.ResponseWriter, r *http.Request) {
	var req invalidateTagsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || len(req.Tags) == 0 {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "tags are required")
		return
	}
	h.cache.InvalidateByTags(r.Context(), req.Tags)
	httpx.OK(w, map[string]bool{"invalidated": true})
}

type invalidatePatternRequest struct {
	Pattern string `json:"pattern"`
}

func (h *Handler) handleInvalidatePattern(w http.ResponseWriter, r *http.Request) {
	var req invalidatePatternRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Pattern == "" {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "pattern is required")
		return
	}
	removed := h.cache.InvalidateByPattern(r.Context(), req.Pattern)
	httpx.OK(w, map[string]int64{"removed": removed})
}

func (h *Handler) handleWarm(w http.ResponseWriter, r *http.Request) {
	if h.warm == nil {
		httpx.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "no warm set configured")
		return
	}
	if err := h.warm(r.Context()); err != nil {
		h.logger.Error("cache warm", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "cache warm failed")
		return
	}
	httpx.OK(w, map[string]bool{"warmed": true})
}

package main

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CTAG07/markus/pkg/store"
)

// CacheAPI reports on and maintains the render cache.
type CacheAPI struct {
	cache       *store.Cache
	maxAgeHours int
	logger      *slog.Logger
}

func NewCacheAPI(cache *store.Cache, maxAgeHours int, logger *slog.Logger) *CacheAPI {
	return &CacheAPI{cache: cache, maxAgeHours: maxAgeHours, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/cache endpoints.
func (c *CacheAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/cache/summary", c.handleSummary)
	mux.HandleFunc("/api/cache/top", c.handleTop)
	mux.HandleFunc("/api/cache/prune", c.handlePrune)
	mux.HandleFunc("/api/cache/clear", c.handleClear)
}

// enabled answers 404 when the server runs without a cache.
func (c *CacheAPI) enabled(w http.ResponseWriter) bool {
	if c.cache == nil {
		respondWithError(w, http.StatusNotFound, "Render cache is disabled")
		return false
	}
	return true
}

func (c *CacheAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeCacheRead) || !c.enabled(w) {
		return
	}
	stats, err := c.cache.Stats(r.Context())
	if err != nil {
		c.logger.Error("Failed to get cache stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve cache stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleTop lists the most requested renders. ?limit defaults to 10.
func (c *CacheAPI) handleTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeCacheRead) || !c.enabled(w) {
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	entries, err := c.cache.Top(r.Context(), limit)
	if err != nil {
		c.logger.Error("Failed to get top cache entries", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve cache entries")
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// handlePrune removes entries not hit for ?hours, or the configured max age.
func (c *CacheAPI) handlePrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeCacheWrite) || !c.enabled(w) {
		return
	}
	hours := c.maxAgeHours
	if q := r.URL.Query().Get("hours"); q != "" {
		h, err := strconv.Atoi(q)
		if err != nil || h < 0 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'hours' must be a non-negative integer")
			return
		}
		hours = h
	}
	removed, err := c.cache.Prune(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		c.logger.Error("Failed to prune cache", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to prune cache")
		return
	}
	c.logger.Info("Render cache pruned via API", "removed", removed, "hours", hours)
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (c *CacheAPI) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeCacheWrite) || !c.enabled(w) {
		return
	}
	removed, err := c.cache.Clear(r.Context())
	if err != nil {
		c.logger.Error("Failed to clear cache", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	c.logger.Info("Render cache cleared via API", "removed", removed)
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

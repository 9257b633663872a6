package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/store"
	"github.com/CTAG07/markus/pkg/tags"
	"github.com/CTAG07/markus/pkg/templating"
)

type Server struct {
	cm        *ConfigManager
	db        *sql.DB
	logger    *slog.Logger
	tm        *templating.TagManager
	cache     *store.Cache
	metrics   *Metrics
	rs        *RenderService
	authAPI   *AuthAPI
	renderAPI *RenderAPI
	tagsAPI   *TagsAPI
	cacheAPI  *CacheAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// newTagManager builds a registry with the built-in tags and loads the tag
// files on top of it.
func newTagManager(config *templating.TagConfig, logger *slog.Logger) (*templating.TagManager, error) {
	registry := markus.NewRegistry()
	if err := tags.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register built-in tags: %w", err)
	}
	tm, err := templating.NewTagManager(logger, registry, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag manager: %w", err)
	}
	return tm, nil
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	tm, err := newTagManager(config.Tags, logger)
	if err != nil {
		return nil, err
	}
	if err = tm.EnsureTagDir(); err != nil {
		return nil, fmt.Errorf("failed to create tag directory: %w", err)
	}
	cm.SetTagManager(tm)

	var cache *store.Cache
	if config.Server.CacheEnabled {
		cache, err = store.NewCache(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create render cache: %w", err)
		}
		cache.SetLogger(logger)
	}

	metrics := NewMetrics()
	metrics.tagsLoaded.Set(float64(len(tm.GetTags())))
	rs := NewRenderService(tm, cache, metrics, logger)

	server := &Server{
		cm:        cm,
		db:        db,
		logger:    logger,
		tm:        tm,
		cache:     cache,
		metrics:   metrics,
		rs:        rs,
		authAPI:   NewAuthAPI(db, logger),
		renderAPI: NewRenderAPI(rs, config.Server.MaxBodyBytes, logger),
		tagsAPI:   NewTagsAPI(tm, rs, metrics, config.Server.MaxBodyBytes, logger),
		cacheAPI:  NewCacheAPI(cache, config.Server.CacheMaxAgeHours, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.tagsAPI.RegisterRoutes(apiMux)
	server.cacheAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything under /api/ passes through authentication first,
	// except the health check.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))
	server.apiMux.Handle("/metrics", metrics.Handler())

	return server, nil
}

// Handler returns the root handler of the server.
func (s *Server) Handler() http.Handler {
	return s.apiMux
}

// Close releases the resources owned by the server. The database is closed
// by the caller.
func (s *Server) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

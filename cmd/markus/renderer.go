package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/store"
	"github.com/CTAG07/markus/pkg/templating"
)

// RenderService renders documents through the tag manager, serving repeated
// requests from the render cache when one is configured.
type RenderService struct {
	tm      *templating.TagManager
	cache   *store.Cache
	metrics *Metrics
	logger  *slog.Logger
	// afterRender runs between rendering and storing the result. Tests only.
	afterRender func()
}

// RenderResult is the outcome of one render.
type RenderResult struct {
	Output string
	Cached bool
}

func NewRenderService(tm *templating.TagManager, cache *store.Cache, metrics *Metrics, logger *slog.Logger) *RenderService {
	return &RenderService{tm: tm, cache: cache, metrics: metrics, logger: logger}
}

// Render renders text with opts. Renders that carry Data are never cached,
// since their handlers may depend on it. Cache keys include the tag set, so
// output stored after a concurrent reload is never served for the new tags.
func (s *RenderService) Render(ctx context.Context, text string, opts markus.Options) (RenderResult, error) {
	useCache := s.cache != nil && opts.Data == nil
	var key string
	if useCache {
		key = store.Key(s.tm.Fingerprint(), text, opts)
		entry, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "Render cache lookup failed", "error", err)
		} else if ok {
			s.metrics.cacheHits.Inc()
			s.metrics.rendersTotal.WithLabelValues("cached").Inc()
			return RenderResult{Output: entry.Output, Cached: true}, nil
		}
		s.metrics.cacheMisses.Inc()
	}

	start := time.Now()
	out, fingerprint, err := s.tm.RenderFingerprint(text, opts)
	s.metrics.renderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.rendersTotal.WithLabelValues("error").Inc()
		return RenderResult{}, err
	}
	s.metrics.rendersTotal.WithLabelValues("ok").Inc()

	if s.afterRender != nil {
		s.afterRender()
	}

	if useCache {
		entry := store.Entry{Key: store.Key(fingerprint, text, opts), Context: contextName(opts), Encoding: opts.Encoding, Output: out}
		if err = s.cache.Put(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "Failed to store render in cache", "error", err)
		}
	}
	return RenderResult{Output: out}, nil
}

// Tree parses text and returns its indented node tree.
func (s *RenderService) Tree(text string, opts markus.Options) string {
	doc := s.tm.Registry().Parse(text, opts)
	if doc == nil {
		return ""
	}
	return markus.Pretty(doc)
}

// Invalidate drops every cached render, e.g. after tags were reloaded.
func (s *RenderService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear render cache", "error", err)
	}
}

func contextName(opts markus.Options) string {
	if opts.Context == "" {
		return markus.DefaultContext
	}
	return opts.Context
}

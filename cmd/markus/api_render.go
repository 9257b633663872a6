package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/tags"
)

// RenderAPI serves document rendering over HTTP.
type RenderAPI struct {
	rs           *RenderService
	maxBodyBytes int64
	logger       *slog.Logger
}

// RenderRequest is the JSON body accepted by the render endpoints.
type RenderRequest struct {
	Text        string `json:"text"`
	Context     string `json:"context"`
	Encoding    string `json:"encoding"`
	AllowedTags string `json:"allowed_tags"`
	// Titles asks for the section titles of the document as well. Such
	// renders bypass the cache.
	Titles bool `json:"titles"`
}

// RenderResponse is returned by POST /api/render.
type RenderResponse struct {
	Output string       `json:"output"`
	Cached bool         `json:"cached"`
	Titles *tags.Titles `json:"titles,omitempty"`
}

func NewRenderAPI(rs *RenderService, maxBodyBytes int64, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{rs: rs, maxBodyBytes: maxBodyBytes, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/render endpoints.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", a.handleRender)
	mux.HandleFunc("/api/render/tree", a.handleTree)
}

func (a *RenderAPI) decode(w http.ResponseWriter, r *http.Request) (*RenderRequest, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return nil, false
	}
	if !requireScope(w, r, scopeRender) {
		return nil, false
	}
	limitBody(w, r, a.maxBodyBytes)
	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if !respondTooLarge(w, err) {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		}
		return nil, false
	}
	return &req, true
}

// limitBody caps the request body at n bytes. Zero leaves it unlimited.
func limitBody(w http.ResponseWriter, r *http.Request, n int64) {
	if n > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, n)
	}
}

// respondTooLarge answers with 413 if err comes from a body over its limit.
func respondTooLarge(w http.ResponseWriter, err error) bool {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return false
	}
	respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	return true
}

func (req *RenderRequest) options() markus.Options {
	return markus.Options{
		Context:     req.Context,
		Encoding:    req.Encoding,
		AllowedTags: req.AllowedTags,
	}
}

func (a *RenderAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decode(w, r)
	if !ok {
		return
	}

	opts := req.options()
	var titles *tags.Titles
	if req.Titles {
		titles = &tags.Titles{}
		opts.Data = map[string]any{tags.TitlesKey: titles}
	}

	res, err := a.rs.Render(r.Context(), req.Text, opts)
	if err != nil {
		var renderErr *markus.RenderError
		if errors.As(err, &renderErr) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.logger.Error("Render failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Render failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, RenderResponse{Output: res.Output, Cached: res.Cached, Titles: titles})
}

// handleTree returns the parsed node tree of the document as plain text.
func (a *RenderAPI) handleTree(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decode(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(a.rs.Tree(req.Text, req.options())))
}

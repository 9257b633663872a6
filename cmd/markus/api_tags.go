package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/templating"
)

const tagFileSuffix = ".tag.yaml"

// TagsAPI exposes the loaded tags and the files in the tag directory.
type TagsAPI struct {
	tm           *templating.TagManager
	rs           *RenderService
	metrics      *Metrics
	maxBodyBytes int64
	logger       *slog.Logger
}

// PreviewRequest carries an unsaved tag file and a document to render with it.
type PreviewRequest struct {
	TagFile  string `json:"tag_file"`
	Text     string `json:"text"`
	Context  string `json:"context"`
	Encoding string `json:"encoding"`
}

func NewTagsAPI(tm *templating.TagManager, rs *RenderService, metrics *Metrics, maxBodyBytes int64, logger *slog.Logger) *TagsAPI {
	return &TagsAPI{tm: tm, rs: rs, metrics: metrics, maxBodyBytes: maxBodyBytes, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/tags endpoints.
func (t *TagsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/tags", t.handleList)
	mux.HandleFunc("/api/tags/refresh", t.handleRefresh)
	mux.HandleFunc("/api/tags/preview", t.handlePreview)
	mux.HandleFunc("/api/tags/files", t.handleFileList)
	mux.HandleFunc("/api/tags/files/", t.handleFile)
}

// reload refreshes the tag manager and drops renders made with the old tags.
func (t *TagsAPI) reload(ctx context.Context) error {
	if err := t.tm.Refresh(); err != nil {
		return err
	}
	t.rs.Invalidate(ctx)
	t.metrics.tagsLoaded.Set(float64(len(t.tm.GetTags())))
	return nil
}

func (t *TagsAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeTagsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, t.tm.GetTags())
}

// handleRefresh reloads every tag file from disk.
func (t *TagsAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeTagsWrite) {
		return
	}
	if err := t.reload(r.Context()); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to refresh tags: %v", err))
		return
	}
	t.logger.Info("Tags refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview renders text with a tag file that has not been saved.
func (t *TagsAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeTagsRead) {
		return
	}
	limitBody(w, r, t.maxBodyBytes)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if !respondTooLarge(w, err) {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		}
		return
	}
	out, err := t.tm.RenderString(req.TagFile, req.Text, markus.Options{Context: req.Context, Encoding: req.Encoding})
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Preview failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (t *TagsAPI) handleFileList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeTagsRead) {
		return
	}
	matches, err := filepath.Glob(filepath.Join(t.tm.GetTagDir(), "*"+tagFileSuffix))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list tag files")
		return
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	respondWithJSON(w, http.StatusOK, names)
}

// tagFilePath resolves a file name from the URL inside the tag directory.
func (t *TagsAPI) tagFilePath(name string) (string, int, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || !strings.HasSuffix(name, tagFileSuffix) {
		return "", http.StatusBadRequest, errors.New("Invalid tag file name format")
	}
	tagDir, err := filepath.Abs(t.tm.GetTagDir())
	if err != nil {
		return "", http.StatusInternalServerError, errors.New("Failed to resolve tag directory")
	}
	path := filepath.Join(tagDir, name)
	if filepath.Dir(path) != tagDir {
		return "", http.StatusForbidden, errors.New("Access denied: Path outside tag directory")
	}
	return path, 0, nil
}

// handleFile reads, writes and deletes a single tag file. Writes are
// validated before they reach the disk.
func (t *TagsAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	path, code, err := t.tagFilePath(strings.TrimPrefix(r.URL.Path, "/api/tags/files/"))
	if err != nil {
		respondWithError(w, code, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeTagsRead) {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Tag file not found")
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		if !requireScope(w, r, scopeTagsWrite) {
			return
		}
		limitBody(w, r, t.maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			if respondTooLarge(w, err) {
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		if _, err = t.tm.RenderString(string(body), "", markus.Options{}); err != nil {
			respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid tag file: %v", err))
			return
		}
		if err = t.tm.EnsureTagDir(); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create tag directory: %v", err))
			return
		}
		if err = atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write tag file: %v", err))
			return
		}
		if err = t.reload(r.Context()); err != nil {
			// The file is valid on its own but clashes with the others.
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Saved, but tags failed to reload: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !requireScope(w, r, scopeTagsWrite) {
			return
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				respondWithError(w, http.StatusNotFound, "Tag file not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete tag file: %v", err))
			return
		}
		if err = t.reload(r.Context()); err != nil {
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Deleted, but tags failed to reload: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

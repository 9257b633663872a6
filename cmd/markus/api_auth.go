package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

// authHeader carries the raw API key on every authenticated request.
const authHeader = "markus-auth"

// Scopes understood by the API. "*" grants all of them.
const (
	scopeRender        = "render"
	scopeTagsRead      = "tags:read"
	scopeTagsWrite     = "tags:write"
	scopeCacheRead     = "cache:read"
	scopeCacheWrite    = "cache:write"
	scopeServerConfig  = "server:config"
	scopeServerControl = "server:control"
	scopeAuthManage    = "auth:manage"
	scopeAll           = "*"
)

var knownScopes = map[string]struct{}{
	scopeRender: {}, scopeTagsRead: {}, scopeTagsWrite: {},
	scopeCacheRead: {}, scopeCacheWrite: {},
	scopeServerConfig: {}, scopeServerControl: {},
	scopeAuthManage: {}, scopeAll: {},
}

var (
	errUnknownScope  = errors.New("unknown scope")
	errNoScopes      = errors.New("at least one scope is required")
	errLastMasterKey = errors.New("cannot delete the last key holding the '*' scope")
	errKeyNotFound   = errors.New("key not found")
)

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// Permissions is the set of scopes granted to a request.
type Permissions map[string]struct{}

func newPermissions(scopes ...string) Permissions {
	p := make(Permissions, len(scopes))
	for _, s := range scopes {
		p[s] = struct{}{}
	}
	return p
}

// Has reports whether scope is granted, directly or through "*".
func (p Permissions) Has(scope string) bool {
	if _, ok := p[scopeAll]; ok {
		return true
	}
	_, ok := p[scope]
	return ok
}

// Sorted returns the granted scopes in order.
func (p Permissions) Sorted() []string {
	out := make([]string, 0, len(p))
	for s := range p {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// normalizeScopes deduplicates and validates requested scopes. A "*" among
// them makes the others redundant.
func normalizeScopes(requested []string) ([]string, error) {
	p := make(Permissions)
	for _, s := range requested {
		s = strings.TrimSpace(s)
		if _, ok := knownScopes[s]; !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownScope, s)
		}
		p[s] = struct{}{}
	}
	if _, ok := p[scopeAll]; ok {
		return []string{scopeAll}, nil
	}
	return p.Sorted(), nil
}

// keyStore persists hashed API keys in the api_keys table.
type keyStore struct {
	db *sql.DB
}

func (ks keyStore) count(ctx context.Context) (int, error) {
	var n int
	err := ks.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&n)
	return n, err
}

// permissions resolves a raw key. It returns sql.ErrNoRows for unknown keys.
func (ks keyStore) permissions(ctx context.Context, rawKey string) (Permissions, error) {
	var scopes string
	err := ks.db.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&scopes)
	if err != nil {
		return nil, err
	}
	return newPermissions(strings.Fields(scopes)...), nil
}

func (ks keyStore) list(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := ks.db.QueryContext(ctx, "SELECT id, description, scopes FROM api_keys ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var key APIKeyInfo
		var scopes string
		if err = rows.Scan(&key.ID, &key.Description, &scopes); err != nil {
			return nil, err
		}
		key.Scopes = strings.Fields(scopes)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// create stores a new key. The first key of an empty table always gets "*"
// so the API cannot lock itself out.
func (ks keyStore) create(ctx context.Context, description string, scopes []string) (CreateKeyResponse, error) {
	rawKey, err := generateAPIKey()
	if err != nil {
		return CreateKeyResponse{}, err
	}
	n, err := ks.count(ctx)
	if err != nil {
		return CreateKeyResponse{}, err
	}
	if n == 0 {
		scopes = []string{scopeAll}
	} else if len(scopes) == 0 {
		return CreateKeyResponse{}, errNoScopes
	}

	res := CreateKeyResponse{RawKey: rawKey, Scopes: scopes}
	err = ks.db.QueryRowContext(ctx,
		"INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id",
		hashAPIKey(rawKey), description, strings.Join(scopes, " ")).Scan(&res.ID)
	return res, err
}

// remove deletes a key unless it is the last one holding "*".
func (ks keyStore) remove(ctx context.Context, id int) error {
	tx, err := ks.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var scopes string
	if err = tx.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE id = ?", id).Scan(&scopes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errKeyNotFound
		}
		return err
	}
	if newPermissions(strings.Fields(scopes)...).Has(scopeAll) {
		var masters int
		if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys WHERE scopes = ?", scopeAll).Scan(&masters); err != nil {
			return err
		}
		if masters <= 1 {
			return errLastMasterKey
		}
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// AuthAPI checks API keys and manages them.
type AuthAPI struct {
	keys   keyStore
	logger *slog.Logger
}

// APIKeyInfo is one key as listed by GET /api/auth/keys. The raw key is
// never stored.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the body of POST /api/auth/keys.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse carries the raw key, shown only once.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{keys: keyStore{db: db}, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// Authenticate attaches the Permissions of the markus-auth key to the
// request. An empty key table leaves the API open with every scope.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perms, status := a.resolve(r)
		if status != http.StatusOK {
			respondWithError(w, status, http.StatusText(status))
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyPermissions, perms)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthAPI) resolve(r *http.Request) (Permissions, int) {
	n, err := a.keys.count(r.Context())
	if err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		return nil, http.StatusInternalServerError
	}
	if n == 0 {
		return newPermissions(scopeAll), http.StatusOK
	}
	rawKey := r.Header.Get(authHeader)
	if rawKey == "" {
		return nil, http.StatusUnauthorized
	}
	perms, err := a.keys.permissions(r.Context(), rawKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, http.StatusUnauthorized
	case err != nil:
		a.logger.Error("Failed to look up API key", "error", err)
		return nil, http.StatusInternalServerError
	}
	return perms, http.StatusOK
}

// requireScope writes a 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if hasScope(r, scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func hasScope(r *http.Request, scope string) bool {
	perms, ok := r.Context().Value(contextKeyPermissions).(Permissions)
	return ok && perms.Has(scope)
}

func (a *AuthAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	perms, ok := r.Context().Value(contextKeyPermissions).(Permissions)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing key")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": perms.Sorted()})
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	if r.Method == http.MethodGet {
		keys, err := a.keys.list(r.Context())
		if err != nil {
			a.logger.Error("Failed to list API keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to list keys")
			return
		}
		respondWithJSON(w, http.StatusOK, keys)
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	scopes, err := normalizeScopes(req.Scopes)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.keys.create(r.Context(), req.Description, scopes)
	if errors.Is(err, errNoScopes) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.logger.Error("Failed to create API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}
	a.logger.Info("API key created", "id", created.ID, "scopes", created.Scopes)
	respondWithJSON(w, http.StatusCreated, created)
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	switch err = a.keys.remove(r.Context(), id); {
	case errors.Is(err, errKeyNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	case errors.Is(err, errLastMasterKey):
		respondWithError(w, http.StatusConflict, err.Error())
	case err != nil:
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	default:
		a.logger.Info("API key deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "mk_" + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to encode JSON response", "error", err)
		}
	}
}

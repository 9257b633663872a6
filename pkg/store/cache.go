package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// SetupSchema initializes the render cache table in the provided database.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaCache = `
CREATE TABLE IF NOT EXISTS render_cache (
    cache_key TEXT PRIMARY KEY,
    context TEXT NOT NULL,
    encoding TEXT NOT NULL,
    output TEXT NOT NULL,
    hits INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    last_hit INTEGER NOT NULL
);
`
		indexLastHit = `CREATE INDEX IF NOT EXISTS render_cache_last_hit ON render_cache (last_hit);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaCache); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	if _, err = tx.Exec(indexLastHit); err != nil {
		return fmt.Errorf("could not create index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Entry is one cached render.
type Entry struct {
	Key       string    `json:"key"`
	Context   string    `json:"context"`
	Encoding  string    `json:"encoding"`
	Output    string    `json:"output,omitempty"`
	Hits      int64     `json:"hits"`
	CreatedAt time.Time `json:"created_at"`
	LastHit   time.Time `json:"last_hit"`
}

// Stats summarizes the cache.
type Stats struct {
	Entries     int64 `json:"entries"`
	TotalHits   int64 `json:"total_hits"`
	OutputBytes int64 `json:"output_bytes"`
}

// Cache stores rendered output with prepared statements. It is safe for
// concurrent use to the extent the underlying *sql.DB is.
type Cache struct {
	db        *sql.DB
	stmtGet   *sql.Stmt
	stmtHit   *sql.Stmt
	stmtPut   *sql.Stmt
	stmtStats *sql.Stmt
	stmtPrune *sql.Stmt
	stmtTop   *sql.Stmt
	stmtClear *sql.Stmt
	logger    *slog.Logger
	now       func() time.Time
}

// NewCache prepares the cache statements. SetupSchema must have been run on db.
func NewCache(db *sql.DB) (*Cache, error) {
	stmtGet, err := db.Prepare(`SELECT context, encoding, output, hits, created_at, last_hit FROM render_cache WHERE cache_key = ?;`)
	if err != nil {
		return nil, err
	}

	stmtHit, err := db.Prepare(`UPDATE render_cache SET hits = hits + 1, last_hit = ? WHERE cache_key = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPut, err := db.Prepare(`INSERT INTO render_cache (cache_key, context, encoding, output, created_at, last_hit) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(cache_key) DO UPDATE SET output = excluded.output, last_hit = excluded.last_hit;`)
	if err != nil {
		return nil, err
	}

	stmtStats, err := db.Prepare(`SELECT COUNT(*), coalesce(SUM(hits), 0), coalesce(SUM(LENGTH(CAST(output AS BLOB))), 0) FROM render_cache;`)
	if err != nil {
		return nil, err
	}

	stmtPrune, err := db.Prepare(`DELETE FROM render_cache WHERE last_hit < ?;`)
	if err != nil {
		return nil, err
	}

	stmtTop, err := db.Prepare(`SELECT cache_key, context, encoding, hits, created_at, last_hit FROM render_cache ORDER BY hits DESC, last_hit DESC LIMIT ?;`)
	if err != nil {
		return nil, err
	}

	stmtClear, err := db.Prepare(`DELETE FROM render_cache;`)
	if err != nil {
		return nil, err
	}

	return &Cache{
		db:        db,
		stmtGet:   stmtGet,
		stmtHit:   stmtHit,
		stmtPut:   stmtPut,
		stmtStats: stmtStats,
		stmtPrune: stmtPrune,
		stmtTop:   stmtTop,
		stmtClear: stmtClear,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}, nil
}

// Close releases all prepared SQL statements held by the Cache.
func (c *Cache) Close() {
	_ = c.stmtGet.Close()
	_ = c.stmtHit.Close()
	_ = c.stmtPut.Close()
	_ = c.stmtStats.Close()
	_ = c.stmtPrune.Close()
	_ = c.stmtTop.Close()
	_ = c.stmtClear.Close()
}

// SetLogger sets the logger for the Cache. By default, all logs are discarded.
func (c *Cache) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Get looks up key. On a hit the entry's hit count and last hit time are
// updated before it is returned.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	e := Entry{Key: key}
	var created, last int64
	err := c.stmtGet.QueryRowContext(ctx, key).Scan(&e.Context, &e.Encoding, &e.Output, &e.Hits, &created, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	now := c.now()
	if _, err = c.stmtHit.ExecContext(ctx, now.Unix(), key); err != nil {
		return Entry{}, false, fmt.Errorf("could not record cache hit: %w", err)
	}
	e.Hits++
	e.CreatedAt = time.Unix(created, 0)
	e.LastHit = time.Unix(now.Unix(), 0)
	return e, true, nil
}

// Put stores the output of an entry, replacing the output of an existing
// entry with the same key. Hits are kept.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	now := c.now().Unix()
	if _, err := c.stmtPut.ExecContext(ctx, e.Key, e.Context, e.Encoding, e.Output, now, now); err != nil {
		return fmt.Errorf("could not store cache entry: %w", err)
	}
	return nil
}

// Stats returns entry, hit and size totals.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.stmtStats.QueryRowContext(ctx).Scan(&s.Entries, &s.TotalHits, &s.OutputBytes); err != nil {
		return nil, err
	}
	return &s, nil
}

// Prune removes entries whose last hit is before olderThan and returns how
// many were removed.
func (c *Cache) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := c.stmtPrune.ExecContext(ctx, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("could not prune cache: %w", err)
	}
	removed, _ := res.RowsAffected()

	c.logger.InfoContext(ctx, "Render cache pruned",
		slog.Time("older_than", olderThan),
		slog.Int64("entries_removed", removed),
	)
	return removed, nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	res, err := c.stmtClear.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not clear cache: %w", err)
	}
	removed, _ := res.RowsAffected()
	c.logger.InfoContext(ctx, "Render cache cleared", slog.Int64("entries_removed", removed))
	return removed, nil
}

// Top returns up to limit entries with the most hits. Output is left empty.
func (c *Cache) Top(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := c.stmtTop.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var created, last int64
		if err = rows.Scan(&e.Key, &e.Context, &e.Encoding, &e.Hits, &created, &last); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		e.LastHit = time.Unix(last, 0)
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

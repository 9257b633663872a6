package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CTAG07/markus/pkg/markus"
)

// setupTestCache creates a SQLite database in a temp dir and a Cache over it.
// The returned clock pointer controls the cache's notion of now.
func setupTestCache(t *testing.T) (*Cache, *time.Time) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	c, err := NewCache(db)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	t.Cleanup(c.Close)

	clock := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestSetupSchema_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "twice.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	for i := 0; i < 2; i++ {
		if err := SetupSchema(db); err != nil {
			t.Fatalf("SetupSchema() call %d error = %v", i+1, err)
		}
	}
}

func TestCache_PutGet(t *testing.T) {
	c, clock := setupTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want a miss", ok, err)
	}

	created := *clock
	entry := Entry{Key: "k1", Context: "default", Encoding: "html", Output: "<b>x</b>"}
	if err := c.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	*clock = clock.Add(time.Minute)
	got, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get(k1) = ok %v, err %v; want a hit", ok, err)
	}
	want := Entry{
		Key: "k1", Context: "default", Encoding: "html", Output: "<b>x</b>",
		Hits: 1, CreatedAt: created, LastHit: *clock,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	// A second Put replaces the output and keeps the hits.
	entry.Output = "<b>y</b>"
	if err = c.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, _, _ = c.Get(ctx, "k1")
	if got.Output != "<b>y</b>" || got.Hits != 2 {
		t.Errorf("after replace got output %q hits %d, want %q and 2", got.Output, got.Hits, "<b>y</b>")
	}
}

func TestCache_StatsAndTop(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{Key: "a", Context: "default", Encoding: "none", Output: "aaa"},
		{Key: "b", Context: "default", Encoding: "none", Output: "bb"},
		{Key: "c", Context: "docs", Encoding: "html", Output: "ü"},
	} {
		if err := c.Put(ctx, e); err != nil {
			t.Fatalf("Put(%s) error = %v", e.Key, err)
		}
	}
	for _, k := range []string{"b", "b", "b", "a", "c", "c"} {
		if _, _, err := c.Get(ctx, k); err != nil {
			t.Fatalf("Get(%s) error = %v", k, err)
		}
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if diff := cmp.Diff(&Stats{Entries: 3, TotalHits: 6, OutputBytes: 7}, stats); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}

	top, err := c.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 2 || top[0].Key != "b" || top[1].Key != "c" {
		t.Fatalf("Top(2) = %+v, want b then c", top)
	}
	if top[0].Hits != 3 || top[0].Output != "" {
		t.Errorf("Top()[0] = %+v, want 3 hits and no output", top[0])
	}
}

func TestCache_PruneAndClear(t *testing.T) {
	c, clock := setupTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, Entry{Key: "old", Context: "default", Encoding: "none", Output: "o"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	*clock = clock.Add(2 * time.Hour)
	if err := c.Put(ctx, Entry{Key: "new", Context: "default", Encoding: "none", Output: "n"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	removed, err := c.Prune(ctx, clock.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d entries, want 1", removed)
	}
	if _, ok, _ := c.Get(ctx, "old"); ok {
		t.Error("old entry survived Prune")
	}
	if _, ok, _ := c.Get(ctx, "new"); !ok {
		t.Error("new entry was pruned")
	}

	removed, err = c.Clear(ctx)
	if err != nil || removed != 1 {
		t.Errorf("Clear() = %d, %v; want 1, nil", removed, err)
	}
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	if err := c.Put(ctx, Entry{Key: "shared", Context: "default", Encoding: "none", Output: "x"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, _, err := c.Get(ctx, "shared"); err != nil {
					t.Errorf("Get() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	e, _, _ := c.Get(ctx, "shared")
	if e.Hits != 41 {
		t.Errorf("hits = %d, want 41", e.Hits)
	}
}

func TestKey(t *testing.T) {
	base := Key("", "<b>x</b>", markus.Options{})
	if len(base) != 64 {
		t.Fatalf("Key() length = %d, want 64 hex chars", len(base))
	}

	same := []markus.Options{
		{Context: markus.DefaultContext},
		{Encoding: markus.EncodingNone},
		{AllowedTags: " "},
	}
	for _, opts := range same {
		if got := Key("", "<b>x</b>", opts); got != base {
			t.Errorf("Key(%+v) differs from the default options key", opts)
		}
	}
	if Key("", "<b>x</b>", markus.Options{AllowedTags: "B, i"}) != Key("", "<b>x</b>", markus.Options{Allowed: markus.ParseTagSet("i,b")}) {
		t.Error("equal allow-lists produced different keys")
	}

	different := []markus.Options{
		{Context: "docs"},
		{Encoding: markus.EncodingHTML},
		{AllowedTags: "b"},
	}
	for _, opts := range different {
		if got := Key("", "<b>x</b>", opts); got == base {
			t.Errorf("Key(%+v) collides with the default options key", opts)
		}
	}
	if Key("", "<b>y</b>", markus.Options{}) == base {
		t.Error("different text produced the same key")
	}
	if Key("v2", "<b>x</b>", markus.Options{}) == base {
		t.Error("different tag sets produced the same key")
	}
}

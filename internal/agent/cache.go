package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"trackio.app/trackio/internal/model"
)

// Cache is the single-slot durable buffer for the most recent unsent batch.
// It survives process restarts; it is not a log: each save overwrites the
// previous entry wholesale.
type Cache struct {
	db     *sql.DB
	maxAge time.Duration
	clock  Clock
	logger *slog.Logger
}

func OpenCache(path string, maxAge time.Duration, clock Clock, log *slog.Logger) (*Cache, error) {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS pending_batch (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		saved_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating cache: %w", err)
	}

	return &Cache{db: db, maxAge: maxAge, clock: clock, logger: log}, nil
}

// Save persists the payload with a write timestamp, replacing any prior
// entry. An empty payload clears the slot instead: the cache never holds an
// empty batch.
func (c *Cache) Save(ctx context.Context, payload model.BatchPayload) error {
	if len(payload.Heartbeats) == 0 {
		c.Clear(ctx)
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding cached batch: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO pending_batch (slot, saved_at, payload) VALUES (1, ?, ?)
		 ON CONFLICT (slot) DO UPDATE SET saved_at = excluded.saved_at, payload = excluded.payload`,
		c.clock.Now().Unix(), string(raw),
	)
	if err != nil {
		return fmt.Errorf("writing cached batch: %w", err)
	}
	return nil
}

// LoadAndClear reads the cached batch, clearing the slot before returning
// it. Clearing first means a crash between this read and a failed send
// cannot cause the same data to be loaded twice; re-persisting after a
// failed send is the sender's job. Absent, empty, or expired entries yield
// nil.
func (c *Cache) LoadAndClear(ctx context.Context) (*model.BatchPayload, error) {
	var savedAt int64
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT saved_at, payload FROM pending_batch WHERE slot = 1`,
	).Scan(&savedAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached batch: %w", err)
	}

	c.Clear(ctx)

	if c.clock.Now().Sub(time.Unix(savedAt, 0)) > c.maxAge {
		c.logger.InfoContext(ctx, "discarding expired cached batch",
			"saved_at", time.Unix(savedAt, 0))
		return nil, nil
	}

	var payload model.BatchPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cached batch", "error", err)
		return nil, nil
	}
	if len(payload.Heartbeats) == 0 {
		return nil, nil
	}
	return &payload, nil
}

// Clear empties the slot. Idempotent; storage failures are logged, never
// surfaced, so a broken cache cannot stop in-memory collection.
func (c *Cache) Clear(ctx context.Context) {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM pending_batch WHERE slot = 1`); err != nil {
		c.logger.WarnContext(ctx, "failed to clear cache", "error", err)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}

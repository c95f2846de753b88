// Package journal keeps a bounded, process-local record of retry pipeline
// events in an in-memory SQLite database.
//
// Nothing is written to disk: the journal lives and dies with the process,
// and only the most recent MaxEntries rows are retained. It backs the
// retry:///attempts resource.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vibeteam/vibeteam-mcp/internal/retry"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// Entry is one journaled pipeline event.
type Entry struct {
	ID           int64  `json:"id"`
	InvocationID string `json:"invocation_id"`
	Tool         string `json:"tool"`
	State        string `json:"state"`
	Attempt      int    `json:"attempt"`
	MaxAttempts  int    `json:"max_attempts"`
	Error        string `json:"error,omitempty"`
	Category     string `json:"category,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	DelayMs      int64  `json:"delay_ms,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds journal configuration.
type Config struct {
	// MaxEntries bounds the number of retained rows; older rows are pruned.
	MaxEntries int
	// MaxErrorLength truncates stored error messages.
	MaxErrorLength int
	// IncludeRunning also journals attempt-start events.
	IncludeRunning bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:     1000,
		MaxErrorLength: 2000,
	}
}

// ─── Journal ─────────────────────────────────────────────────────────────────

// Journal is the SQLite-backed event log.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// Open creates an in-memory journal and runs migrations.
func Open(cfg Config, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}

	db, err := openDB("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// Every new connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, cfg: cfg, logger: logger}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS retry_events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			invocation_id TEXT    NOT NULL,
			tool          TEXT    NOT NULL,
			state         TEXT    NOT NULL,
			attempt       INTEGER NOT NULL,
			max_attempts  INTEGER NOT NULL,
			error_message TEXT    NOT NULL DEFAULT '',
			category      TEXT    NOT NULL DEFAULT '',
			pattern       TEXT    NOT NULL DEFAULT '',
			delay_ms      INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_retry_events_invocation ON retry_events(invocation_id);
		CREATE INDEX IF NOT EXISTS idx_retry_events_pattern    ON retry_events(pattern);
	`
	_, err := j.db.Exec(schema)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Observe journals a pipeline event. Write failures are logged, never
// propagated, so the journal cannot fail an invocation.
func (j *Journal) Observe(ev retry.Event) {
	if ev.State == retry.StateRunning && !j.cfg.IncludeRunning {
		return
	}
	if err := j.Append(ev); err != nil {
		j.logger.Warn("journal append failed", "error", err, "invocation", ev.InvocationID)
	}
}

// Append inserts one event and prunes rows beyond MaxEntries.
func (j *Journal) Append(ev retry.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	category := ""
	if ev.State == retry.StateWaiting || ev.State == retry.StateFailed {
		category = ev.Category.String()
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := j.db.Exec(
		`INSERT INTO retry_events
			(invocation_id, tool, state, attempt, max_attempts, error_message, category, pattern, delay_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.InvocationID, ev.Name, ev.State.String(), ev.Attempt, ev.MaxAttempts,
		truncate(ev.Error, j.cfg.MaxErrorLength), category, ev.Pattern,
		ev.Delay.Milliseconds(), ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: insert event: %w", err)
	}

	_, err = j.db.Exec(
		`DELETE FROM retry_events
		 WHERE id <= (SELECT MAX(id) FROM retry_events) - ?`,
		j.cfg.MaxEntries,
	)
	if err != nil {
		return fmt.Errorf("journal: prune: %w", err)
	}
	return nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return j.query(
		`SELECT id, invocation_id, tool, state, attempt, max_attempts, error_message, category, pattern, delay_ms, created_at
		 FROM retry_events ORDER BY id DESC LIMIT ?`, limit)
}

// Invocation returns every entry for one invocation in emission order.
func (j *Journal) Invocation(invocationID string) ([]Entry, error) {
	return j.query(
		`SELECT id, invocation_id, tool, state, attempt, max_attempts, error_message, category, pattern, delay_ms, created_at
		 FROM retry_events WHERE invocation_id = ? ORDER BY id ASC`, invocationID)
}

// Count returns the number of retained entries.
func (j *Journal) Count() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM retry_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

func (j *Journal) query(query string, args ...any) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.InvocationID, &e.Tool, &e.State, &e.Attempt, &e.MaxAttempts,
			&e.Error, &e.Category, &e.Pattern, &e.DelayMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

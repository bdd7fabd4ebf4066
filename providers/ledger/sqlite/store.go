// Package sqlite stores ledger rows in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/providers/ledger"
)

const unknownModel = "unknown"

// Store is a ledger.Ledger backed by SQLite. Usage is folded into one row per
// day, model and kind with additive upserts.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ ledger.Ledger = (*Store)(nil)

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger sqlite: path is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("ledger sqlite: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("ledger sqlite: create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", abs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger sqlite: ping database: %w", err)
	}

	store := &Store{db: db, path: abs, now: time.Now}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the absolute database path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`
		CREATE TABLE IF NOT EXISTS daily_usage (
			day TEXT NOT NULL,
			model TEXT NOT NULL,
			kind TEXT NOT NULL,
			requests INTEGER NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			cached_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL,
			cost_micro INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (day, model, kind)
		)
		`,
		`CREATE INDEX IF NOT EXISTS idx_daily_usage_day ON daily_usage (day)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ledger sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// HandleUsage adds entry to the row of its day, model and kind. A zero
// entry.At is stamped with the current time.
func (s *Store) HandleUsage(ctx context.Context, entry cost.Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ledger sqlite: not initialized")
	}

	at := entry.At
	if at.IsZero() {
		at = s.now()
	}
	model := strings.TrimSpace(entry.Model)
	if model == "" {
		model = unknownModel
	}
	usage := entry.Usage.Normalize()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_usage (
			day, model, kind,
			requests, prompt_tokens, cached_tokens, output_tokens, total_tokens,
			cost_micro, updated_at
		) VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, model, kind) DO UPDATE SET
			requests = requests + excluded.requests,
			prompt_tokens = prompt_tokens + excluded.prompt_tokens,
			cached_tokens = cached_tokens + excluded.cached_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			total_tokens = total_tokens + excluded.total_tokens,
			cost_micro = cost_micro + excluded.cost_micro,
			updated_at = excluded.updated_at
	`, ledger.DayKey(at), model, string(entry.Kind),
		usage.PromptTokens, usage.CachedTokens, usage.OutputTokens, usage.TotalTokens,
		max(ledger.ToMicro(entry.Cost.TotalCost), 0), s.now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("ledger sqlite: add usage: %w", err)
	}
	return nil
}

func (s *Store) DailyReport(ctx context.Context, day string) ([]ledger.Row, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("ledger sqlite: not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT day, model, kind, requests, prompt_tokens, cached_tokens, output_tokens, total_tokens, cost_micro
		FROM daily_usage
		WHERE day = ?
		ORDER BY model ASC, kind ASC
	`, strings.TrimSpace(day))
	if err != nil {
		return nil, fmt.Errorf("ledger sqlite: query daily report: %w", err)
	}
	defer rows.Close()

	var out []ledger.Row
	for rows.Next() {
		var row ledger.Row
		var kind string
		if err := rows.Scan(&row.Day, &row.Model, &kind, &row.Requests,
			&row.PromptTokens, &row.CachedTokens, &row.OutputTokens, &row.TotalTokens, &row.CostMicro); err != nil {
			return nil, fmt.Errorf("ledger sqlite: scan daily row: %w", err)
		}
		row.Kind = cost.Kind(kind)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger sqlite: daily report rows: %w", err)
	}
	return out, nil
}

func (s *Store) Totals(ctx context.Context) (ledger.Totals, error) {
	if s == nil || s.db == nil {
		return ledger.Totals{}, fmt.Errorf("ledger sqlite: not initialized")
	}

	var totals ledger.Totals
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(requests), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(cached_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(cost_micro), 0),
			COALESCE(MIN(day), ''),
			COALESCE(MAX(day), '')
		FROM daily_usage
	`)
	if err := row.Scan(&totals.Requests, &totals.PromptTokens, &totals.CachedTokens, &totals.OutputTokens,
		&totals.TotalTokens, &totals.CostMicro, &totals.FirstDay, &totals.LastDay); err != nil {
		return ledger.Totals{}, fmt.Errorf("ledger sqlite: query totals: %w", err)
	}
	return totals, nil
}

func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("ledger sqlite: not initialized")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage`); err != nil {
		return fmt.Errorf("ledger sqlite: reset: %w", err)
	}
	return nil
}

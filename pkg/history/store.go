// Package history journals decision records in SQLite. The journal is for
// inspection only; cache and budget state are never restored from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/models"
)

// promptLimit caps the stored prompt preview, in runes.
const promptLimit = 200

// Store writes and queries decision records in a SQLite database.
type Store struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

const createDecisionsTable = `
CREATE TABLE IF NOT EXISTS decisions (
	id               TEXT PRIMARY KEY,
	sequence         INTEGER NOT NULL,
	prompt           TEXT NOT NULL,
	status           TEXT NOT NULL,
	classification   TEXT NOT NULL,
	cache_outcome    TEXT NOT NULL,
	budget_outcome   TEXT NOT NULL,
	tier             TEXT NOT NULL DEFAULT '',
	model            TEXT NOT NULL DEFAULT '',
	estimated_tokens INTEGER NOT NULL DEFAULT 0,
	estimated_cost   REAL NOT NULL DEFAULT 0,
	reject_reason    TEXT NOT NULL DEFAULT '',
	reason           TEXT NOT NULL,
	budget_remaining REAL NOT NULL,
	created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_class ON decisions(classification, tier);
`

// Open opens the journal database, creating the schema if needed. When
// retention is configured, expired rows are pruned hourly until Close.
func Open(cfg config.HistoryConfig) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(createDecisionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	s := &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
		done:          make(chan struct{}),
	}
	if s.retentionDays > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}
	return s, nil
}

// Record journals one decision. Recording the same ID twice keeps the latest.
func (s *Store) Record(ctx context.Context, rec models.DecisionRecord) error {
	var tokens int
	var cost float64
	if rec.Estimate != nil {
		tokens = rec.Estimate.EstimatedTokens
		cost = rec.Estimate.EstimatedCost
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO decisions
		(id, sequence, prompt, status, classification, cache_outcome, budget_outcome,
		 tier, model, estimated_tokens, estimated_cost, reject_reason, reason,
		 budget_remaining, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Sequence, models.Truncate(rec.Request.Text, promptLimit),
		string(rec.Status()), string(rec.Classification), string(rec.CacheOutcome), string(rec.BudgetOutcome),
		string(rec.Tier), rec.Model, tokens, cost, string(rec.RejectReason), rec.Reason,
		rec.BudgetRemaining, rec.Request.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Query returns journaled decisions matching opts, newest first.
func (s *Store) Query(ctx context.Context, opts models.HistoryQueryOpts) ([]models.HistoryEntry, error) {
	q := `SELECT id, prompt, status, classification, cache_outcome, budget_outcome,
		tier, model, estimated_tokens, estimated_cost, reject_reason, reason,
		budget_remaining, created_at
		FROM decisions WHERE 1=1`
	var args []any

	if opts.ID != "" {
		q += " AND id = ?"
		args = append(args, opts.ID)
	}
	if opts.Classification != "" {
		q += " AND classification = ?"
		args = append(args, string(opts.Classification))
	}
	if opts.Status != "" {
		q += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Tier != "" {
		q += " AND tier = ?"
		args = append(args, string(opts.Tier))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC, sequence DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.Prompt, &e.Status, &e.Classification, &e.CacheOutcome, &e.BudgetOutcome,
			&e.Tier, &e.Model, &e.EstimatedTokens, &e.EstimatedCost, &e.RejectReason, &e.Reason,
			&e.BudgetRemaining, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary aggregates decisions since the given time by classification and
// tier. Tokens and cost count only charged decisions.
func (s *Store) Summary(ctx context.Context, since time.Time) ([]models.HistorySummary, error) {
	q := `SELECT classification, tier, COUNT(*),
		SUM(CASE WHEN cache_outcome = 'HIT' THEN 1 ELSE 0 END),
		SUM(CASE WHEN reject_reason != '' THEN 1 ELSE 0 END),
		COALESCE(SUM(CASE WHEN budget_outcome = 'APPROVED' THEN estimated_tokens ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN budget_outcome = 'APPROVED' THEN estimated_cost ELSE 0.0 END), 0.0)
		FROM decisions`
	var args []any
	if !since.IsZero() {
		q += " WHERE created_at >= ?"
		args = append(args, since.UTC())
	}
	q += " GROUP BY classification, tier ORDER BY classification, tier"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history summary: %w", err)
	}
	defer rows.Close()

	var out []models.HistorySummary
	for rows.Next() {
		var h models.HistorySummary
		if err := rows.Scan(&h.Classification, &h.Tier, &h.Count, &h.CacheHits, &h.Rejected,
			&h.TotalTokens, &h.TotalCost); err != nil {
			return nil, fmt.Errorf("scan history summary: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Cleanup deletes decisions older than the retention period. It is a no-op
// when retention is disabled.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background())
		}
	}
}

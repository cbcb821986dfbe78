// Package sqlite persists completed analysis runs for the history command.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/StockMateGo/models"
	pkgsqlite "github.com/dyike/StockMateGo/pkg/sqlite"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var ErrNotFound = errors.New("run not found")

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    mode TEXT NOT NULL,
    final_decision TEXT NOT NULL,
    risk_verdict TEXT NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    report TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_ticker ON runs(ticker);
`,
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dbPath string) (*Store, error) {
	db, err := pkgsqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := pkgsqlite.Migrate(context.Background(), db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores the report exactly as it is serialized to callers.
func (s *Store) SaveRun(ctx context.Context, rec models.RunRecord) error {
	if strings.TrimSpace(rec.RunID) == "" {
		return errors.New("run id is required")
	}
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, ticker, mode, final_decision, risk_verdict, degraded, report, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, rec.RunID, rec.Ticker, rec.Mode, string(rec.Report.FinalDecision), string(rec.Report.RiskAssessment),
		rec.Degraded, string(report), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}
	return nil
}

// ListRuns 按 rowid 倒序分页列出运行记录; the second return value is the cursor for the next page, 0 when done.
func (s *Store) ListRuns(ctx context.Context, params models.HistoryParams) ([]models.RunRecord, int64, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT rowid, id, ticker, mode, degraded, report, created_at
FROM runs
WHERE (? = 0 OR rowid < ?)
  AND (? = '' OR ticker = ?)
ORDER BY rowid DESC
LIMIT ?
`, params.Cursor, params.Cursor, params.Ticker, params.Ticker, limit+1)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}

	var next int64
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].RowID
	}
	return out, next, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT rowid, id, ticker, mode, degraded, report, created_at
FROM runs
WHERE id = ?
LIMIT 1
`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (models.RunRecord, error) {
	var (
		rec    models.RunRecord
		report string
	)
	if err := sc.Scan(&rec.RowID, &rec.RunID, &rec.Ticker, &rec.Mode, &rec.Degraded, &report, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(report), &rec.Report); err != nil {
		return rec, fmt.Errorf("decode report %s: %w", rec.RunID, err)
	}
	return rec, nil
}

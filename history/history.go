package history

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"basketfund/native/fund"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("history storage path must be configured")

const defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

// FileDSN converts a filesystem path into an on-disk SQLite DSN with
// sensible defaults. Callers must ensure the path is non-empty.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Store persists the workflow audit trail. It satisfies fund.Recorder.
type Store struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordWorkflow appends one workflow run to the audit trail.
func (s *Store) RecordWorkflow(ctx context.Context, record fund.WorkflowRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("workflow record missing id")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO workflows(id, kind, account, amount_in, amount_out, status, detail, started_at, finished_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, record.ID, record.Kind, record.Account,
		amountText(record.AmountIn), amountText(record.AmountOut),
		record.Status, record.Detail,
		record.StartedAt.UTC().Unix(), record.FinishedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// Workflow is one persisted audit row.
type Workflow struct {
	ID         string
	Kind       string
	Account    string
	AmountIn   *big.Int
	AmountOut  *big.Int
	Status     string
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ListWorkflows returns the most recent runs, newest first.
func (s *Store) ListWorkflows(ctx context.Context, limit int) ([]Workflow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, kind, account, amount_in, amount_out, status, detail, started_at, finished_at
        FROM workflows
        ORDER BY started_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()
	var out []Workflow
	for rows.Next() {
		var (
			record                Workflow
			amountIn, amountOut   string
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&record.ID, &record.Kind, &record.Account,
			&amountIn, &amountOut, &record.Status, &record.Detail,
			&startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if record.AmountIn, err = amountValue(amountIn); err != nil {
			return nil, err
		}
		if record.AmountOut, err = amountValue(amountOut); err != nil {
			return nil, err
		}
		record.StartedAt = time.Unix(startedAt, 0).UTC()
		record.FinishedAt = time.Unix(finishedAt, 0).UTC()
		out = append(out, record)
	}
	return out, rows.Err()
}

// ExportCSV streams the full audit trail, oldest first.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, kind, account, amount_in, amount_out, status, detail, started_at, finished_at
        FROM workflows
        ORDER BY started_at ASC, id ASC
    `)
	if err != nil {
		return fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "kind", "account", "amount_in", "amount_out", "status", "detail", "started_at", "finished_at"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for rows.Next() {
		var (
			id, kind, account, amountIn, amountOut, status, detail string
			startedAt, finishedAt                                  int64
		)
		if err := rows.Scan(&id, &kind, &account, &amountIn, &amountOut, &status, &detail, &startedAt, &finishedAt); err != nil {
			return fmt.Errorf("scan workflow: %w", err)
		}
		record := []string{
			id, kind, account, amountIn, amountOut, status, detail,
			time.Unix(startedAt, 0).UTC().Format(time.RFC3339),
			time.Unix(finishedAt, 0).UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func amountValue(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", trimmed)
	}
	return value, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    account TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    amount_out TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflows_kind_ts ON workflows(kind, started_at);
`

// Package journal keeps a local sqlite trail of every delivered report.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"deploy-reconciler/pkg/model"
)

const schema = `CREATE TABLE IF NOT EXISTS report_journal(
	delivery_id TEXT,
	task_uuid TEXT,
	kind TEXT,
	outcome TEXT,
	detail TEXT,
	digest TEXT,
	duplicate INTEGER,
	ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_report_journal_digest ON report_journal(digest);`

// Journal is safe for use by one receiver; sqlite serialises writers.
type Journal struct {
	db *sql.DB
}

// Open creates the database file and schema at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Digest is the hex sha256 of a report body.
func Digest(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}

func (j *Journal) Record(ctx context.Context, e model.JournalEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO report_journal(delivery_id, task_uuid, kind, outcome, detail, digest, duplicate, ts) VALUES(?,?,?,?,?,?,?,?)`,
		e.DeliveryID, e.TaskUUID, string(e.Kind), e.Outcome, e.Detail, e.Digest, e.Duplicate, e.At.UnixNano())
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Seen reports whether a body with this digest was recorded before.
func (j *Journal) Seen(ctx context.Context, digest string) (bool, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM report_journal WHERE digest=?`, digest).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("journal seen: %w", err)
	}
	return n > 0, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT delivery_id, task_uuid, kind, outcome, detail, digest, duplicate, ts FROM report_journal ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()
	var out []model.JournalEntry
	for rows.Next() {
		var (
			e    model.JournalEntry
			kind string
			ts   int64
		)
		if err := rows.Scan(&e.DeliveryID, &e.TaskUUID, &kind, &e.Outcome, &e.Detail, &e.Digest, &e.Duplicate, &ts); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Kind = model.ReportKind(kind)
		e.At = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one reconciled hashing run as stored in hash_runs.
type Run struct {
	ID         int64     `json:"id"`
	Token      uint64    `json:"token"`
	Path       string    `json:"path"`
	Status     string    `json:"status"`
	Hex        string    `json:"hex,omitempty"`
	Base64     string    `json:"base64,omitempty"`
	Bytes      uint64    `json:"bytes"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// InsertRuns writes runs in a single transaction.
func InsertRuns(ctx context.Context, db *sql.DB, runs []Run) error {
	if len(runs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hash_runs
			(token, path, status, hex, base64, bytes, elapsed_ms, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert_run: %w", err)
	}
	defer stmt.Close()

	for _, r := range runs {
		if _, err := stmt.ExecContext(ctx,
			int64(r.Token), r.Path, r.Status, r.Hex, r.Base64,
			int64(r.Bytes), r.ElapsedMs, r.Error, r.FinishedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert run %d: %w", r.Token, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns runs newest first.
func ListRuns(ctx context.Context, db *sql.DB, limit, offset int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, token, path, status, hex, base64, bytes, elapsed_ms, error, finished_at
		FROM hash_runs
		ORDER BY finished_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			token      int64
			bytes      int64
			finishedAt int64
		)
		if err := rows.Scan(&r.ID, &token, &r.Path, &r.Status, &r.Hex, &r.Base64,
			&bytes, &r.ElapsedMs, &r.Error, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Token = uint64(token)
		r.Bytes = uint64(bytes)
		r.FinishedAt = time.Unix(finishedAt, 0).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of stored runs.
func CountRuns(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hash_runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// PurgeRunsBefore deletes runs that finished before t and returns how many
// were removed.
func PurgeRunsBefore(ctx context.Context, db *sql.DB, t time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM hash_runs WHERE finished_at < ?`, t.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return res.RowsAffected()
}

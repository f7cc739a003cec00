package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"jotacomputing/trade-shm/latency"
)

// SummaryRow is one persisted latency summary.
type SummaryRow struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	latency.Summary
}

// Store keeps a history of latency summaries so long runs can be compared
// after the reader restarts.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	// Create table if not exists
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS latency_summaries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            symbol TEXT NOT NULL,
            recorded_at INTEGER NOT NULL,
            samples INTEGER NOT NULL,
            mean REAL NOT NULL,
            median REAL NOT NULL,
            stddev REAL NOT NULL,
            p95 REAL NOT NULL,
            p99 REAL NOT NULL,
            min REAL NOT NULL,
            max REAL NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_latency_symbol_time
            ON latency_summaries (symbol, recorded_at);
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveSummaries writes every summary with the same timestamp in one transaction.
func (s *Store) SaveSummaries(ctx context.Context, at time.Time, summaries []latency.Summary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO latency_summaries
            (symbol, recorded_at, samples, mean, median, stddev, p95, p99, min, max)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sum := range summaries {
		_, err := stmt.ExecContext(ctx,
			sum.Symbol, at.UnixMilli(), sum.Count,
			sum.Mean, sum.Median, sum.StdDev, sum.P95, sum.P99, sum.Min, sum.Max,
		)
		if err != nil {
			return fmt.Errorf("insert summary %s: %w", sum.Symbol, err)
		}
	}
	return tx.Commit()
}

// History returns up to limit summaries of symbol, newest first.
func (s *Store) History(ctx context.Context, symbol string, limit int) ([]SummaryRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, symbol, recorded_at, samples, mean, median, stddev, p95, p99, min, max
        FROM latency_summaries
        WHERE symbol = ?
        ORDER BY recorded_at DESC, id DESC
        LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SummaryRow{}
	for rows.Next() {
		var row SummaryRow
		var recordedAt int64
		if err := rows.Scan(
			&row.ID, &row.Symbol, &recordedAt, &row.Count,
			&row.Mean, &row.Median, &row.StdDev, &row.P95, &row.P99, &row.Min, &row.Max,
		); err != nil {
			return nil, err
		}
		row.RecordedAt = time.UnixMilli(recordedAt).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

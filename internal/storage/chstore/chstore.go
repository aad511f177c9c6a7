// Package chstore implements storage.JobStore and storage.MarketDataStore
// on top of ClickHouse, using two ReplacingMergeTree tables: one for job
// records (JSON request/result payloads plus lifecycle timestamps), one
// for OHLCV bars keyed by symbol.
package chstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/simerr"
	"fingraph-backtest/internal/storage"
)

// Config names the ClickHouse endpoint and credentials.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Store is a ClickHouse-backed storage.JobStore + storage.MarketDataStore.
type Store struct {
	conn clickhouse.Conn
	db   string
}

// Open dials ClickHouse, pings it, and ensures the jobs/bars tables
// exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIOError, "open clickhouse connection", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, simerr.Wrap(simerr.CodeIOError, "ping clickhouse", err)
	}

	s := &Store{conn: conn, db: cfg.Database}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.db)); err != nil {
		return simerr.Wrap(simerr.CodeIOError, "create database", err)
	}

	jobsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.jobs (
			id String,
			status LowCardinality(String),
			request_json String,
			result_json String,
			error_message String,
			created_at DateTime64(3),
			started_at DateTime64(3),
			completed_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY id
	`, s.db)
	if err := s.conn.Exec(ctx, jobsDDL); err != nil {
		return simerr.Wrap(simerr.CodeIOError, "create jobs table", err)
	}

	barsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.bars (
			symbol String,
			ts_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume UInt64
		)
		ENGINE = ReplacingMergeTree
		ORDER BY (symbol, ts_ms)
	`, s.db)
	if err := s.conn.Exec(ctx, barsDDL); err != nil {
		return simerr.Wrap(simerr.CodeIOError, "create bars table", err)
	}
	return nil
}

func (s *Store) SaveJob(ctx context.Context, rec storage.JobRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.jobs SETTINGS insert_deduplicate=1", s.db))
	if err != nil {
		return simerr.Wrap(simerr.CodeIOError, "prepare job batch", err)
	}
	if err := batch.Append(
		rec.ID, string(rec.Status), string(rec.RequestJSON), string(rec.ResultJSON),
		rec.ErrorMessage, rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
		uint64(time.Now().UnixNano()),
	); err != nil {
		return simerr.Wrap(simerr.CodeIOError, "append job row", err)
	}
	if err := batch.Send(); err != nil {
		return simerr.Wrap(simerr.CodeIOError, "send job batch", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*storage.JobRecord, error) {
	row := s.conn.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, status, request_json, result_json, error_message, created_at, started_at, completed_at
		 FROM %s.jobs FINAL WHERE id = ? LIMIT 1`, s.db), id)

	var rec storage.JobRecord
	var status, reqJSON, resJSON string
	if err := row.Scan(&rec.ID, &status, &reqJSON, &resJSON, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
		return nil, simerr.Wrap(simerr.CodeInvalidRequest, "job not found: "+id, err)
	}
	rec.Status = job.Status(status)
	rec.RequestJSON = []byte(reqJSON)
	rec.ResultJSON = []byte(resJSON)
	return &rec, nil
}

func (s *Store) ListByStatus(ctx context.Context, status job.Status) ([]storage.JobRecord, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		`SELECT id, status, request_json, result_json, error_message, created_at, started_at, completed_at
		 FROM %s.jobs FINAL WHERE status = ? ORDER BY created_at`, s.db), string(status))
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIOError, "list jobs by status", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]storage.JobRecord, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		`SELECT id, status, request_json, result_json, error_message, created_at, started_at, completed_at
		 FROM %s.jobs FINAL ORDER BY created_at DESC LIMIT ?`, s.db), limit)
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIOError, "list recent jobs", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

func scanJobRows(rows driverRows) ([]storage.JobRecord, error) {
	var out []storage.JobRecord
	for rows.Next() {
		var rec storage.JobRecord
		var status, reqJSON, resJSON string
		if err := rows.Scan(&rec.ID, &status, &reqJSON, &resJSON, &rec.ErrorMessage,
			&rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, simerr.Wrap(simerr.CodeIOError, "scan job row", err)
		}
		rec.Status = job.Status(status)
		rec.RequestJSON = []byte(reqJSON)
		rec.ResultJSON = []byte(resJSON)
		out = append(out, rec)
	}
	return out, nil
}

// driverRows is the subset of clickhouse.Rows this package scans,
// narrowed for testability.
type driverRows interface {
	Next() bool
	Scan(dest ...any) error
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status job.Status) error {
	rec, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = status
	return s.SaveJob(ctx, *rec)
}

func (s *Store) UpdateResult(ctx context.Context, id string, resultJSON []byte) error {
	rec, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	rec.ResultJSON = resultJSON
	return s.SaveJob(ctx, *rec)
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	return s.conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s.jobs DELETE WHERE id = ?", s.db), id)
}

func (s *Store) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	err := s.conn.Exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s.jobs DELETE WHERE status IN ('COMPLETED','FAILED') AND completed_at < ?", s.db),
		olderThan)
	if err != nil {
		return 0, simerr.Wrap(simerr.CodeIOError, "cleanup jobs", err)
	}
	return 0, nil // ClickHouse mutations are async; exact count is not observable synchronously.
}

func (s *Store) SaveBars(ctx context.Context, symbol string, bars []market.Bar) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.bars SETTINGS insert_deduplicate=1", s.db))
	if err != nil {
		return simerr.Wrap(simerr.CodeIOError, "prepare bars batch", err)
	}
	for _, b := range bars {
		if err := batch.Append(symbol, uint64(b.Timestamp.UnixMilli()), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return simerr.Wrap(simerr.CodeIOError, "append bar row", err)
		}
	}
	if err := batch.Send(); err != nil {
		return simerr.Wrap(simerr.CodeIOError, "send bars batch", err)
	}
	return nil
}

func (s *Store) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		`SELECT ts_ms, open, high, low, close, volume FROM %s.bars FINAL
		 WHERE symbol = ? AND ts_ms BETWEEN ? AND ? ORDER BY ts_ms`, s.db),
		symbol, uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIOError, "query bars", err)
	}
	defer rows.Close()

	var out []market.Bar
	for rows.Next() {
		var tsMs uint64
		var b market.Bar
		if err := rows.Scan(&tsMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, simerr.Wrap(simerr.CodeIOError, "scan bar row", err)
		}
		b.Timestamp = time.UnixMilli(int64(tsMs)).UTC()
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf("SELECT DISTINCT symbol FROM %s.bars", s.db))
	if err != nil {
		return nil, simerr.Wrap(simerr.CodeIOError, "list symbols", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, simerr.Wrap(simerr.CodeIOError, "scan symbol", err)
		}
		out = append(out, symbol)
	}
	return out, nil
}

func (s *Store) DeleteBars(ctx context.Context, symbol string, before time.Time) error {
	if before.IsZero() {
		return s.conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s.bars DELETE WHERE symbol = ?", s.db), symbol)
	}
	return s.conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s.bars DELETE WHERE symbol = ? AND ts_ms < ?", s.db),
		symbol, uint64(before.UnixMilli()))
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }

// Package storage defines the narrow persistence interfaces the service
// facade and job manager depend on, independent of backend.
package storage

import (
	"context"
	"time"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/market"
)

// JobRecord is the durable representation of a Job, decoupled from the
// in-memory job.Job so a storage backend never needs the kernel's
// result type directly on its write path.
type JobRecord struct {
	ID           string
	Status       job.Status
	RequestJSON  []byte
	ResultJSON   []byte
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
}

// JobStore is the narrow interface required from the persistence
// collaborator for job records.
type JobStore interface {
	SaveJob(ctx context.Context, rec JobRecord) error
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	ListByStatus(ctx context.Context, status job.Status) ([]JobRecord, error)
	ListRecent(ctx context.Context, limit int) ([]JobRecord, error)
	UpdateStatus(ctx context.Context, id string, status job.Status) error
	UpdateResult(ctx context.Context, id string, resultJSON []byte) error
	DeleteJob(ctx context.Context, id string) error
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

// MarketDataStore is the narrow interface required from the persistence
// collaborator for OHLCV bars.
type MarketDataStore interface {
	SaveBars(ctx context.Context, symbol string, bars []market.Bar) error
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error)
	ListSymbols(ctx context.Context) ([]string, error)
	DeleteBars(ctx context.Context, symbol string, before time.Time) error
}

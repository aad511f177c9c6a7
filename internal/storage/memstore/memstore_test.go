package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/storage"
)

func TestSaveAndGetJob(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := storage.JobRecord{ID: "job_1", Status: job.StatusPending, CreatedAt: time.Now()}
	require.NoError(t, s.SaveJob(ctx, rec))

	got, err := s.GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
}

func TestGetJob_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestCleanup_OnlyRemovesOldTerminalJobs(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveJob(ctx, storage.JobRecord{
		ID: "old", Status: job.StatusCompleted, CompletedAt: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, s.SaveJob(ctx, storage.JobRecord{
		ID: "recent", Status: job.StatusCompleted, CompletedAt: time.Now(),
	}))
	require.NoError(t, s.SaveJob(ctx, storage.JobRecord{
		ID: "pending", Status: job.StatusPending,
	}))

	removed, err := s.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetJob(ctx, "old")
	assert.Error(t, err)
	_, err = s.GetJob(ctx, "recent")
	assert.NoError(t, err)
}

func TestBars_SaveAndRange(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []market.Bar{
		{Timestamp: base, Close: 10},
		{Timestamp: base.AddDate(0, 0, 1), Close: 11},
		{Timestamp: base.AddDate(0, 0, 2), Close: 12},
	}
	require.NoError(t, s.SaveBars(ctx, "DEFAULT", bars))

	got, err := s.GetBars(ctx, "DEFAULT", base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	symbols, err := s.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEFAULT"}, symbols)
}

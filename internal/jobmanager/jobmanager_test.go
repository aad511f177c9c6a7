package jobmanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/storage/memstore"
)

func writeCSV(t *testing.T, closes []float64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")

	var sb []byte
	sb = append(sb, "timestamp,open,high,low,close,volume\n"...)
	for day, c := range closes {
		sb = append(sb, fmt.Sprintf("2023-%02d-%02d,%g,%g,%g,%g,100\n", day/28+1, day%28+1, c, c+1, c-1, c)...)
	}
	require.NoError(t, os.WriteFile(path, sb, 0o644))
	return path
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	path := writeCSV(t, []float64{10, 10, 12, 11, 13})
	m := New(2, nil, nil, nil)
	m.Start()
	defer m.Stop()

	jobID := m.Submit(job.Request{
		DataPath:       path,
		StrategyName:   "Moving Average Crossover",
		StrategyParams: map[string]float64{"shortPeriod": 2, "longPeriod": 3},
		InitialCash:    1000,
	})

	require.Eventually(t, func() bool {
		j := m.Get(jobID)
		return j != nil && j.Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got := m.Get(jobID)
	require.NotNil(t, got.Result)
	assert.InDelta(t, 1180, got.Result.EquityCurve[len(got.Result.EquityCurve)-1].Value, 1e-9)
}

func TestSubmit_UnknownStrategyFails(t *testing.T) {
	path := writeCSV(t, []float64{10, 10, 12, 11, 13})
	m := New(1, nil, nil, nil)
	m.Start()
	defer m.Stop()

	jobID := m.Submit(job.Request{DataPath: path, StrategyName: "does not exist", InitialCash: 1000})

	require.Eventually(t, func() bool {
		j := m.Get(jobID)
		return j != nil && j.Status == job.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got := m.Get(jobID)
	assert.Contains(t, got.ErrorMessage, "UNKNOWN_STRATEGY")
}

func TestCancel_PendingSucceeds(t *testing.T) {
	path := writeCSV(t, []float64{10, 10, 12, 11, 13})
	m := New(1, nil, nil, nil) // single worker so a second submit stays queued

	req := job.Request{
		DataPath:       path,
		StrategyName:   "Moving Average Crossover",
		StrategyParams: map[string]float64{"shortPeriod": 2, "longPeriod": 3},
		InitialCash:    1000,
	}

	blockerID := m.Submit(req)
	pendingID := m.Submit(req)

	// Cancel before Start(): pendingID is guaranteed still PENDING since
	// nothing has been dispatched yet.
	require.True(t, m.Cancel(pendingID))
	assert.Equal(t, job.StatusCancelled, m.Get(pendingID).Status)

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.Get(blockerID).Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// A job cancelled while queued must never have executed: status stays
	// CANCELLED, not overwritten by execute().
	assert.Equal(t, job.StatusCancelled, m.Get(pendingID).Status)
	assert.Nil(t, m.Get(pendingID).Result)
}

func TestCancel_RunningJobReturnsFalse(t *testing.T) {
	path := writeCSV(t, []float64{10, 10, 12, 11, 13})
	m := New(1, nil, nil, nil)
	m.Start()
	defer m.Stop()

	jobID := m.Submit(job.Request{
		DataPath:       path,
		StrategyName:   "Moving Average Crossover",
		StrategyParams: map[string]float64{"shortPeriod": 2, "longPeriod": 3},
		InitialCash:    1000,
	})

	require.Eventually(t, func() bool {
		return m.Get(jobID).Status == job.StatusRunning || m.Get(jobID).Status == job.StatusCompleted
	}, 2*time.Second, time.Millisecond)

	// Whether we observe it RUNNING or it has already raced to COMPLETED,
	// Cancel must not succeed on a non-PENDING job.
	assert.False(t, m.Cancel(jobID))
}

func TestCancel_UnknownJobReturnsFalse(t *testing.T) {
	m := New(1, nil, nil, nil)
	assert.False(t, m.Cancel("job_does_not_exist"))
}

func TestJobIDs_AreUnique(t *testing.T) {
	m := New(1, nil, nil, nil)
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := m.Submit(job.Request{DataPath: "/dev/null", StrategyName: "x", InitialCash: 1})
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 500)
}

func TestCleanup_RemovesOldTerminalJobs(t *testing.T) {
	m := New(1, nil, nil, nil)
	jobID := m.Submit(job.Request{DataPath: "/dev/null", StrategyName: "x", InitialCash: 1})

	m.registryMu.Lock()
	j := m.jobs[jobID]
	j.Status = job.StatusFailed
	j.CompletedAt = time.Now().Add(-48 * time.Hour)
	m.registryMu.Unlock()

	m.Cleanup(24 * time.Hour)
	assert.Nil(t, m.Get(jobID))
}

func TestRun_SetsEstimatedCompletion(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 10 + float64(i%5)
	}
	path := writeCSV(t, closes)
	m := New(1, nil, nil, nil)
	m.Start()
	defer m.Stop()

	jobID := m.Submit(job.Request{
		DataPath:       path,
		StrategyName:   "Moving Average Crossover",
		StrategyParams: map[string]float64{"shortPeriod": 5, "longPeriod": 20},
		InitialCash:    1000,
	})

	require.Eventually(t, func() bool {
		return m.Get(jobID).Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotZero(t, m.Get(jobID).EstimatedCompletionMs)
}

func TestSubmit_PersistsJobRecordToStore(t *testing.T) {
	store := memstore.New()
	m := New(1, nil, nil, store)

	jobID := m.Submit(job.Request{DataPath: "/dev/null", StrategyName: "x", InitialCash: 1})

	rec, err := store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.RequestJSON)
}

func TestRun_PersistsResultAndStatusToStore(t *testing.T) {
	path := writeCSV(t, []float64{10, 10, 12, 11, 13})
	store := memstore.New()
	m := New(1, nil, nil, store)
	m.Start()
	defer m.Stop()

	jobID := m.Submit(job.Request{
		DataPath:       path,
		StrategyName:   "Moving Average Crossover",
		StrategyParams: map[string]float64{"shortPeriod": 2, "longPeriod": 3},
		InitialCash:    1000,
	})

	require.Eventually(t, func() bool {
		return m.Get(jobID).Status == job.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	rec, err := store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.ResultJSON)
}

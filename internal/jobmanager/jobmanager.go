// Package jobmanager implements the bounded worker pool that dequeues
// and executes backtest jobs: a FIFO queue dispatched through a
// condition variable, one registry mutex for the job map, an atomic
// running-jobs counter, and best-effort progress callbacks.
package jobmanager

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/kernel"
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/simerr"
	"fingraph-backtest/internal/storage"
	"fingraph-backtest/internal/storage/memstore"
	"fingraph-backtest/internal/strategy"
)

// ProgressCallback is invoked best-effort on each progress update. A slow
// callback degrades throughput but must not corrupt state, so the
// manager calls it outside any lock.
type ProgressCallback func(jobID string, progress float64, step string)

// Metrics is the set of Prometheus collectors the manager updates at
// state transitions. Construct with NewMetrics and register Collectors()
// with a registerer.
type Metrics struct {
	JobsQueued    prometheus.Gauge
	JobsRunning   prometheus.Gauge
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter
	Duration      prometheus.Histogram
}

// NewMetrics builds the manager's default collector set.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fingraph_jobs_queued", Help: "Jobs currently waiting in the FIFO queue.",
		}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fingraph_jobs_running", Help: "Jobs currently executing.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fingraph_jobs_completed_total", Help: "Jobs that reached COMPLETED.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fingraph_jobs_failed_total", Help: "Jobs that reached FAILED.",
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fingraph_jobs_cancelled_total", Help: "Jobs that reached CANCELLED.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "fingraph_backtest_duration_seconds", Help: "Wall-clock duration of a single backtest run.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.JobsQueued, m.JobsRunning, m.JobsCompleted, m.JobsFailed, m.JobsCancelled, m.Duration}
}

// Manager is the bounded worker pool. Construct with New, call Start
// before Submit, and Stop to drain.
type Manager struct {
	maxWorkers int
	logger     *zap.Logger
	metrics    *Metrics
	jobStore   storage.JobStore

	registryMu sync.Mutex
	jobs       map[string]*job.Job

	queueMu sync.Mutex
	queue   []*job.Job
	cond    *sync.Cond

	running      atomic.Bool
	runningJobs  atomic.Int64
	stopping     atomic.Bool
	wg           sync.WaitGroup

	callbackMu sync.Mutex
	callback   ProgressCallback
}

// New constructs a Manager with maxWorkers worker goroutines, not yet
// started. jobStore persists job records alongside the authoritative
// in-memory registry; a nil jobStore defaults to an in-memory store, so
// Manager always has somewhere to durably record lifecycle transitions.
func New(maxWorkers int, logger *zap.Logger, metrics *Metrics, jobStore storage.JobStore) *Manager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if jobStore == nil {
		jobStore = memstore.New()
	}
	m := &Manager{
		maxWorkers: maxWorkers,
		logger:     logger,
		metrics:    metrics,
		jobStore:   jobStore,
		jobs:       make(map[string]*job.Job),
	}
	m.cond = sync.NewCond(&m.queueMu)
	return m
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (m *Manager) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.stopping.Store(false)
	for i := 0; i < m.maxWorkers; i++ {
		m.wg.Add(1)
		go m.workerLoop()
	}
}

// Stop signals workers to stop taking jobs from the queue and blocks
// until every worker goroutine exits. In-flight jobs run to completion;
// jobs still queued stay in the queue and are never run, as spec.md
// §5 describes for the source engine.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.queueMu.Lock()
	m.stopping.Store(true)
	m.cond.Broadcast()
	m.queueMu.Unlock()
	m.wg.Wait()
}

// SetProgressCallback registers the single progress callback, replacing
// any previously registered one.
func (m *Manager) SetProgressCallback(cb ProgressCallback) {
	m.callbackMu.Lock()
	m.callback = cb
	m.callbackMu.Unlock()
}

// Submit creates a PENDING job and appends it to the FIFO queue,
// returning its id. Never blocks and never fails for a well-formed
// request.
func (m *Manager) Submit(req job.Request) string {
	j := job.New(req)

	m.registryMu.Lock()
	m.jobs[j.ID] = j
	m.registryMu.Unlock()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		m.logger.Warn("failed to marshal job request for storage", zap.String("job_id", j.ID), zap.Error(err))
		reqJSON = nil
	}
	m.saveJobRecord(storage.JobRecord{
		ID:          j.ID,
		Status:      j.Status,
		RequestJSON: reqJSON,
		CreatedAt:   j.CreatedAt,
	})

	m.queueMu.Lock()
	m.queue = append(m.queue, j)
	m.metrics.JobsQueued.Set(float64(len(m.queue)))
	m.cond.Signal()
	m.queueMu.Unlock()

	return j.ID
}

// saveJobRecord and updateJobStatus/updateJobResult persist lifecycle
// transitions to jobStore best-effort: a storage failure is logged but
// never fails the job itself, since m.jobs is the authoritative registry
// workers and readers actually observe.
func (m *Manager) saveJobRecord(rec storage.JobRecord) {
	if err := m.jobStore.SaveJob(context.Background(), rec); err != nil {
		m.logger.Warn("failed to persist job record", zap.String("job_id", rec.ID), zap.Error(err))
	}
}

func (m *Manager) updateJobStatus(jobID string, status job.Status) {
	if err := m.jobStore.UpdateStatus(context.Background(), jobID, status); err != nil {
		m.logger.Warn("failed to persist job status", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (m *Manager) updateJobResult(jobID string, result *kernel.Result) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		m.logger.Warn("failed to marshal job result for storage", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := m.jobStore.UpdateResult(context.Background(), jobID, resultJSON); err != nil {
		m.logger.Warn("failed to persist job result", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Cancel transitions a PENDING job to CANCELLED, returning true iff it
// did. Non-PENDING jobs (including RUNNING) are left untouched.
func (m *Manager) Cancel(jobID string) bool {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != job.StatusPending {
		return false
	}
	j.Status = job.StatusCancelled
	j.CompletedAt = time.Now()
	m.metrics.JobsCancelled.Inc()
	m.updateJobStatus(j.ID, job.StatusCancelled)
	return true
}

// Get returns a snapshot copy of the job, or nil if unknown.
func (m *Manager) Get(jobID string) *job.Job {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *j
	return &snapshot
}

// QueueSize returns the number of jobs currently waiting.
func (m *Manager) QueueSize() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

// RunningJobsCount returns the number of jobs currently executing.
func (m *Manager) RunningJobsCount() int64 {
	return m.runningJobs.Load()
}

// Cleanup removes COMPLETED/FAILED jobs whose CompletedAt is older than
// now-maxAge, from both the in-memory registry and jobStore.
func (m *Manager) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	m.registryMu.Lock()
	for id, j := range m.jobs {
		if (j.Status == job.StatusCompleted || j.Status == job.StatusFailed) &&
			!j.CompletedAt.IsZero() && j.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
	m.registryMu.Unlock()

	if _, err := m.jobStore.Cleanup(context.Background(), cutoff); err != nil {
		m.logger.Warn("failed to clean up persisted job records", zap.Error(err))
	}
}

func (m *Manager) workerLoop() {
	defer m.wg.Done()
	for {
		j := m.popJob()
		if j == nil {
			return // stopping
		}
		m.execute(j)
	}
}

// popJob waits under the condition variable until the queue is
// non-empty or the manager is stopping, matching the classic
// "wait until predicate(queue non-empty OR stopping)" discipline.
func (m *Manager) popJob() *job.Job {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	for len(m.queue) == 0 && !m.stopping.Load() {
		m.cond.Wait()
	}
	if m.stopping.Load() {
		return nil
	}

	j := m.queue[0]
	m.queue = m.queue[1:]
	m.metrics.JobsQueued.Set(float64(len(m.queue)))
	return j
}

func (m *Manager) execute(j *job.Job) {
	m.registryMu.Lock()
	// A job cancelled while still queued must not run.
	if j.Status == job.StatusCancelled {
		m.registryMu.Unlock()
		return
	}
	j.Status = job.StatusRunning
	j.StartedAt = time.Now()
	j.CurrentStep = "Starting execution"
	m.registryMu.Unlock()
	m.updateJobStatus(j.ID, job.StatusRunning)

	m.runningJobs.Add(1)
	m.metrics.JobsRunning.Set(float64(m.runningJobs.Load()))
	started := time.Now()

	result, err := m.runBacktest(j)

	m.runningJobs.Add(-1)
	m.metrics.JobsRunning.Set(float64(m.runningJobs.Load()))
	m.metrics.Duration.Observe(time.Since(started).Seconds())

	m.registryMu.Lock()
	if err != nil {
		j.Status = job.StatusFailed
		j.ErrorMessage = err.Error()
		j.CurrentStep = "Failed: " + err.Error()
		j.CompletedAt = time.Now()
		m.metrics.JobsFailed.Inc()
	} else {
		j.Status = job.StatusCompleted
		j.Result = result
		j.Progress = 1.0
		j.CurrentStep = "Completed"
		j.CompletedAt = time.Now()
		m.metrics.JobsCompleted.Inc()
	}
	m.registryMu.Unlock()

	// Persist the terminal record with its timestamps so the store's
	// Cleanup can age it out alongside the in-memory registry.
	if rec, err := m.jobStore.GetJob(context.Background(), j.ID); err == nil {
		rec.Status = j.Status
		rec.ErrorMessage = j.ErrorMessage
		rec.StartedAt = j.StartedAt
		rec.CompletedAt = j.CompletedAt
		m.saveJobRecord(*rec)
	} else {
		m.updateJobStatus(j.ID, j.Status)
	}
	if j.Status == job.StatusCompleted {
		m.updateJobResult(j.ID, result)
	}
	m.notify(j.ID, j.Progress, j.CurrentStep)
}

func (m *Manager) runBacktest(j *job.Job) (*kernel.Result, error) {
	m.updateProgress(j, 0.1, "Initializing backtest engine")

	series, warnings, err := market.LoadFromFile(j.Request.DataPath)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		m.logger.Warn("skipped malformed market data row", zap.String("job_id", j.ID), zap.Error(w))
	}

	m.updateProgress(j, 0.2, "Loading market data")

	strat, ok := strategy.New(j.Request.StrategyName)
	if !ok {
		return nil, simerr.New(simerr.CodeUnknownStrategy, "unknown strategy: "+j.Request.StrategyName)
	}
	strat.UpdateParameters(j.Request.StrategyParams)
	if err := strat.Initialize(series); err != nil {
		return nil, err
	}

	replayStarted := time.Now()
	result, _, err := kernel.Run(series, strat, j.Request.InitialCash, kernel.Options{
		Logger: m.logger,
		Progress: func(fraction float64, step string) {
			// scale bar progress into the [0.2, 0.8] band the engine
			// reserves for the replay loop itself
			m.updateProgress(j, 0.2+0.6*fraction, step)
			m.updateETA(j, replayStarted, fraction)
		},
	})
	if err != nil {
		return nil, err
	}

	m.updateProgress(j, 0.8, "Processing results")
	return result, nil
}

// updateETA projects job completion time from the average per-bar
// duration observed so far in the current run: elapsed / fraction
// estimates total replay duration, and the remainder is added to now.
// Left at 0 (unknown) until fraction is positive.
func (m *Manager) updateETA(j *job.Job, replayStarted time.Time, fraction float64) {
	if fraction <= 0 {
		return
	}
	elapsed := time.Since(replayStarted)
	remaining := time.Duration(float64(elapsed)/fraction) - elapsed
	if remaining < 0 {
		remaining = 0
	}

	m.registryMu.Lock()
	j.EstimatedCompletionMs = time.Now().Add(remaining).UnixMilli()
	m.registryMu.Unlock()
}

func (m *Manager) updateProgress(j *job.Job, progress float64, step string) {
	m.registryMu.Lock()
	j.Progress = progress
	j.CurrentStep = step
	m.registryMu.Unlock()
	m.notify(j.ID, progress, step)
}

func (m *Manager) notify(jobID string, progress float64, step string) {
	m.callbackMu.Lock()
	cb := m.callback
	m.callbackMu.Unlock()
	if cb != nil {
		cb(jobID, progress, step)
	}
}

// Package job defines the Job lifecycle record and its state machine.
package job

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"time"

	"fingraph-backtest/internal/kernel"
)

// Status is a Job's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Request is the immutable-once-submitted backtest request.
type Request struct {
	DataPath        string
	StrategyName    string
	StrategyParams  map[string]float64
	InitialCash     float64
	JobID           string
}

// Job is the lifecycle record for one submitted backtest. Single-writer
// convention: only the worker executing the job mutates Status/Progress/
// Result/ErrorMessage/CurrentStep after RUNNING is entered; the job
// manager may transition PENDING to CANCELLED before execution starts.
// Readers must go through the registry's lock for a consistent snapshot.
type Job struct {
	ID          string
	Status      Status
	Request     Request
	Result      *kernel.Result
	ErrorMessage string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Progress    float64
	CurrentStep string

	// EstimatedCompletionMs is a best-effort epoch-ms estimate derived
	// from the average per-bar duration observed so far in the current
	// run; 0 when unknown.
	EstimatedCompletionMs int64
}

// New constructs a fresh PENDING job wrapping req, assigning req.JobID if
// it is empty.
func New(req Request) *Job {
	id := req.JobID
	if id == "" {
		id = GenerateID()
	}
	req.JobID = id
	return &Job{
		ID:        id,
		Status:    StatusPending,
		Request:   req,
		CreatedAt: time.Now(),
	}
}

var jobCounter uint64

// GenerateID produces a job id of the form
// "job_<ms-since-epoch>_<monotonic-counter>_<4-digit-random>", unique
// across the process's lifetime.
func GenerateID() string {
	counter := atomic.AddUint64(&jobCounter, 1) - 1
	ms := time.Now().UnixMilli()
	suffix := randomDigits()
	return fmt.Sprintf("job_%d_%d_%04d", ms, counter, suffix)
}

func randomDigits() int {
	var b [2]byte
	_, _ = rand.Read(b[:])
	n := int(b[0])<<8 | int(b[1])
	return 1000 + n%9000
}

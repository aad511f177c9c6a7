// Package service is the facade between external transports (HTTP, CLI)
// and the internal Job Manager: it maps wire DTOs to internal request/
// job types and back, and holds no state of its own beyond a reference
// to the Job Manager it wraps.
package service

import (
	"time"

	"github.com/shopspring/decimal"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/jobmanager"
	"fingraph-backtest/internal/kernel"
	"fingraph-backtest/internal/simerr"
	"fingraph-backtest/internal/storage/arrowexport"
	"fingraph-backtest/internal/strategy"
)

// BacktestRequest is the wire shape of a backtest submission.
type BacktestRequest struct {
	DataPath       string             `json:"data_path"`
	StrategyName   string             `json:"strategy_name"`
	StrategyParams map[string]float64 `json:"strategy_params"`
	InitialCash    decimal.Decimal    `json:"initial_cash"`
	JobID          string             `json:"job_id,omitempty"`
}

// TradeDTO is one fill in a Result's trade log.
type TradeDTO struct {
	Symbol      string  `json:"symbol"`
	Type        string  `json:"type"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp"`
}

// EquityPointDTO is one mark-to-market sample in a Result's equity curve.
type EquityPointDTO struct {
	TimestampMs int64   `json:"timestamp"`
	Value       float64 `json:"value"`
}

// ResultDTO is the wire shape of a completed backtest's outcome.
type ResultDTO struct {
	JobID       string           `json:"job_id"`
	TotalReturn float64          `json:"total_return"`
	SharpeRatio float64          `json:"sharpe_ratio"`
	MaxDrawdown float64          `json:"max_drawdown"`
	WinRate     float64          `json:"win_rate"`
	Trades      []TradeDTO       `json:"trades"`
	EquityCurve []EquityPointDTO `json:"equity_curve"`
}

// StatusDTO is the wire shape of a job's current lifecycle state.
type StatusDTO struct {
	JobID                 string     `json:"job_id"`
	Status                job.Status `json:"status"`
	Progress              float64    `json:"progress"`
	Message               string     `json:"message"`
	StartTimeMs           int64      `json:"start_time_ms"`
	EstimatedCompletionMs int64      `json:"estimated_completion_ms"`
}

// StrategyInfo describes one registered strategy for discovery: a name
// and human description distinct from its per-parameter schema.
type StrategyInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  []strategy.ParamSpec `json:"parameters"`
}

// Service is the facade over a Job Manager. It depends on jobmanager in
// one direction only — jobmanager never imports service.
type Service struct {
	jobs *jobmanager.Manager
}

// New wraps an already-started jobmanager.Manager.
func New(jobs *jobmanager.Manager) *Service {
	return &Service{jobs: jobs}
}

// SubmitBacktest validates req, enqueues it, and returns the assigned
// job id.
func (s *Service) SubmitBacktest(req BacktestRequest) (string, error) {
	if req.DataPath == "" {
		return "", simerr.New(simerr.CodeInvalidRequest, "data_path is required")
	}
	if req.StrategyName == "" {
		return "", simerr.New(simerr.CodeInvalidRequest, "strategy_name is required")
	}
	cash, _ := req.InitialCash.Float64()
	if cash <= 0 {
		return "", simerr.New(simerr.CodeInvalidRequest, "initial_cash must be positive")
	}

	id := s.jobs.Submit(job.Request{
		DataPath:       req.DataPath,
		StrategyName:   req.StrategyName,
		StrategyParams: req.StrategyParams,
		InitialCash:    cash,
		JobID:          req.JobID,
	})
	return id, nil
}

// GetJobStatus returns the current StatusDTO for jobID, or an error if
// no such job is known.
func (s *Service) GetJobStatus(jobID string) (*StatusDTO, error) {
	j := s.jobs.Get(jobID)
	if j == nil {
		return nil, simerr.New(simerr.CodeInvalidRequest, "job not found: "+jobID)
	}
	return &StatusDTO{
		JobID:                 j.ID,
		Status:                j.Status,
		Progress:              j.Progress,
		Message:               statusMessage(j),
		StartTimeMs:           epochMs(j.StartedAt),
		EstimatedCompletionMs: j.EstimatedCompletionMs,
	}, nil
}

func statusMessage(j *job.Job) string {
	if j.Status == job.StatusFailed {
		return j.ErrorMessage
	}
	return j.CurrentStep
}

func epochMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// GetJobResults returns the ResultDTO for a COMPLETED job. Any other
// status is an error — callers should poll GetJobStatus first.
func (s *Service) GetJobResults(jobID string) (*ResultDTO, error) {
	j := s.jobs.Get(jobID)
	if j == nil {
		return nil, simerr.New(simerr.CodeInvalidRequest, "job not found: "+jobID)
	}
	if j.Status != job.StatusCompleted {
		return nil, simerr.New(simerr.CodeInvalidRequest, "job is not completed: "+string(j.Status))
	}
	return toResultDTO(j.ID, j.Result), nil
}

// ResultToDTO converts a kernel.Result into its wire representation.
// Exported for cmd/simulate, which runs a backtest directly against the
// kernel without going through the Job Manager.
func ResultToDTO(jobID string, result *kernel.Result) *ResultDTO {
	return toResultDTO(jobID, result)
}

func toResultDTO(jobID string, result *kernel.Result) *ResultDTO {
	trades := make([]TradeDTO, len(result.Trades))
	for i, t := range result.Trades {
		trades[i] = TradeDTO{
			Symbol:      t.Symbol,
			Type:        t.Side.String(),
			Quantity:    t.Quantity,
			Price:       t.Price,
			TimestampMs: t.Timestamp.UnixMilli(),
		}
	}

	curve := make([]EquityPointDTO, len(result.EquityCurve))
	for i, p := range result.EquityCurve {
		curve[i] = EquityPointDTO{TimestampMs: p.TimestampMs, Value: p.Value}
	}

	return &ResultDTO{
		JobID:       jobID,
		TotalReturn: result.TotalReturn,
		SharpeRatio: result.SharpeRatio,
		MaxDrawdown: result.MaxDrawdown,
		WinRate:     result.WinRate,
		Trades:      trades,
		EquityCurve: curve,
	}
}

// ExportEquityCurve returns a COMPLETED job's equity curve as an Arrow
// IPC record batch, for downstream analytics consumers that want
// columnar access without re-parsing the JSON result DTO.
func (s *Service) ExportEquityCurve(jobID string) ([]byte, error) {
	result, err := s.completedResult(jobID)
	if err != nil {
		return nil, err
	}
	return arrowexport.ExportEquityCurve(result)
}

// ExportTradeLog returns a COMPLETED job's trade log as an Arrow IPC
// record batch.
func (s *Service) ExportTradeLog(jobID string) ([]byte, error) {
	result, err := s.completedResult(jobID)
	if err != nil {
		return nil, err
	}
	return arrowexport.ExportTradeLog(result)
}

func (s *Service) completedResult(jobID string) (*kernel.Result, error) {
	j := s.jobs.Get(jobID)
	if j == nil {
		return nil, simerr.New(simerr.CodeInvalidRequest, "job not found: "+jobID)
	}
	if j.Status != job.StatusCompleted {
		return nil, simerr.New(simerr.CodeInvalidRequest, "job is not completed: "+string(j.Status))
	}
	return j.Result, nil
}

// CancelJob requests cancellation of a PENDING job, returning true iff
// it transitioned to CANCELLED. RUNNING and terminal jobs are
// untouched.
func (s *Service) CancelJob(jobID string) bool {
	return s.jobs.Cancel(jobID)
}

// ListStrategies returns every registered strategy's name and parameter
// schema.
func (s *Service) ListStrategies() []StrategyInfo {
	names := strategy.Names()
	out := make([]StrategyInfo, 0, len(names))
	for _, name := range names {
		strat, ok := strategy.New(name)
		if !ok {
			continue
		}
		out = append(out, StrategyInfo{Name: name, Description: strat.Description(), Parameters: strat.Describe()})
	}
	return out
}

// GetStrategyParameters returns the parameter schema for a single
// strategy, or false if the name is unregistered.
func (s *Service) GetStrategyParameters(name string) ([]strategy.ParamSpec, bool) {
	strat, ok := strategy.New(name)
	if !ok {
		return nil, false
	}
	return strat.Describe(), true
}

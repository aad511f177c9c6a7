// Package memstore is an in-memory storage.JobStore and
// storage.MarketDataStore, the default backend for the reference
// binaries and for tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"fingraph-backtest/internal/job"
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/simerr"
	"fingraph-backtest/internal/storage"
)

// Store implements storage.JobStore and storage.MarketDataStore over
// mutex-protected maps — the same single-registry-mutex discipline the
// job manager uses for its own job map.
type Store struct {
	mu   sync.Mutex
	jobs map[string]storage.JobRecord
	bars map[string][]market.Bar
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]storage.JobRecord),
		bars: make(map[string][]market.Bar),
	}
}

func (s *Store) SaveJob(_ context.Context, rec storage.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[rec.ID] = rec
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*storage.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, simerr.New(simerr.CodeInvalidRequest, "job not found: "+id)
	}
	return &rec, nil
}

func (s *Store) ListByStatus(_ context.Context, status job.Status) ([]storage.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.JobRecord
	for _, rec := range s.jobs {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]storage.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status job.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return simerr.New(simerr.CodeInvalidRequest, "job not found: "+id)
	}
	rec.Status = status
	s.jobs[id] = rec
	return nil
}

func (s *Store) UpdateResult(_ context.Context, id string, resultJSON []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return simerr.New(simerr.CodeInvalidRequest, "job not found: "+id)
	}
	rec.ResultJSON = resultJSON
	s.jobs[id] = rec
	return nil
}

func (s *Store) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *Store) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.jobs {
		if (rec.Status == job.StatusCompleted || rec.Status == job.StatusFailed) &&
			!rec.CompletedAt.IsZero() && rec.CompletedAt.Before(olderThan) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) SaveBars(_ context.Context, symbol string, bars []market.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = append(s.bars[symbol], bars...)
	sort.Slice(s.bars[symbol], func(i, j int) bool {
		return s.bars[symbol][i].Timestamp.Before(s.bars[symbol][j].Timestamp)
	})
	return nil
}

func (s *Store) GetBars(_ context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []market.Bar
	for _, b := range s.bars[symbol] {
		if (b.Timestamp.Equal(start) || b.Timestamp.After(start)) &&
			(b.Timestamp.Equal(end) || b.Timestamp.Before(end)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListSymbols(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bars))
	for symbol := range s.bars {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteBars(_ context.Context, symbol string, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if before.IsZero() {
		delete(s.bars, symbol)
		return nil
	}
	kept := s.bars[symbol][:0]
	for _, b := range s.bars[symbol] {
		if !b.Timestamp.Before(before) {
			kept = append(kept, b)
		}
	}
	s.bars[symbol] = kept
	return nil
}

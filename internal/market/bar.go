// Package market loads OHLCV bars into a sorted, indexed in-memory
// series.
package market

import "time"

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
}

// Series is an ordered, immutable-after-load sequence of bars, sorted
// ascending by timestamp (duplicate timestamps keep input order), with a
// timestamp-to-position index.
type Series struct {
	bars  []Bar
	index map[int64]int // unix-nano timestamp -> position in bars
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bars returns the full sequence. Callers must not mutate the result.
func (s *Series) Bars() []Bar { return s.bars }

// At returns the bar at position i.
func (s *Series) At(i int) Bar { return s.bars[i] }

// Range returns bars with start <= ts <= end, binary-searching the sorted
// bars for the starting position in O(log n) and then scanning linearly
// to end.
func (s *Series) Range(start, end time.Time) []Bar {
	if len(s.bars) == 0 {
		return nil
	}
	lo, hi := 0, len(s.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.bars[mid].Timestamp.Before(start) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	var out []Bar
	for i := lo; i < len(s.bars); i++ {
		if s.bars[i].Timestamp.After(end) {
			break
		}
		out = append(out, s.bars[i])
	}
	return out
}

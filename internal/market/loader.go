package market

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"fingraph-backtest/internal/simerr"
)

const expectedHeader = "timestamp,open,high,low,close,volume"

// LoadFromFile opens path and delegates to LoadFromReader.
func LoadFromFile(path string) (*Series, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, simerr.Wrap(simerr.CodeIOError, "open "+path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses a CSV stream with header
// "timestamp,open,high,low,close,volume". Rows that fail to parse are
// skipped and returned as warnings rather than aborting the load; the
// load succeeds as long as at least one bar parses. Output is sorted
// ascending by timestamp; duplicate timestamps keep input order.
func LoadFromReader(r io.Reader) (*Series, []error, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, simerr.New(simerr.CodeIOError, "empty market data stream")
	}
	header := strings.TrimSpace(scanner.Text())
	if header != expectedHeader {
		return nil, nil, simerr.New(simerr.CodeParseError, "unexpected header: "+header)
	}

	var bars []Bar
	var warnings []error
	lineNo := 1

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		bar, err := parseRow(line)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		bars = append(bars, bar)
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, simerr.Wrap(simerr.CodeIOError, "read market data", err)
	}
	if len(bars) == 0 {
		return nil, warnings, simerr.New(simerr.CodeInsufficientData, "no bars parsed")
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	series := &Series{bars: bars, index: make(map[int64]int, len(bars))}
	for i, b := range bars {
		if _, exists := series.index[b.Timestamp.UnixNano()]; !exists {
			series.index[b.Timestamp.UnixNano()] = i
		}
	}
	return series, warnings, nil
}

func parseRow(line string) (Bar, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return Bar{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	ts, err := time.Parse("2006-01-02", strings.TrimSpace(fields[0]))
	if err != nil {
		return Bar{}, fmt.Errorf("parse timestamp %q: %w", fields[0], err)
	}

	open, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Bar{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return Bar{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return Bar{}, fmt.Errorf("parse low: %w", err)
	}
	closePx, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return Bar{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := strconv.ParseUint(strings.TrimSpace(fields[5]), 10, 64)
	if err != nil {
		return Bar{}, fmt.Errorf("parse volume: %w", err)
	}

	return Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
	}, nil
}

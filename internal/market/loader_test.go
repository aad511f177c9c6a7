package market

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReader_Basic(t *testing.T) {
	csv := "timestamp,open,high,low,close,volume\n" +
		"2023-01-01,10,11,9,10,100\n" +
		"2023-01-02,10,12,9,11,110\n"

	series, warnings, err := LoadFromReader(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, 10.0, series.At(0).Close)
	assert.Equal(t, 11.0, series.At(1).Close)
}

func TestLoadFromReader_SkipsMalformedRows(t *testing.T) {
	csv := "timestamp,open,high,low,close,volume\n" +
		"2023-01-01,10,11,9,10,100\n" +
		"2023-01-02,10,12,9,11,110\n" +
		"2023-01-03,10,12,9,bad,price\n" +
		"2023-01-04,11,13,10,12,120\n"

	series, warnings, err := LoadFromReader(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Equal(t, 3, series.Len())
}

func TestLoadFromReader_AllRowsMalformed(t *testing.T) {
	csv := "timestamp,open,high,low,close,volume\n" +
		"not-a-date,10,11,9,10,100\n"

	_, warnings, err := LoadFromReader(strings.NewReader(csv))
	require.Error(t, err)
	assert.Len(t, warnings, 1)
}

func TestLoadFromReader_BadHeader(t *testing.T) {
	csv := "ts,o,h,l,c,v\n2023-01-01,10,11,9,10,100\n"
	_, _, err := LoadFromReader(strings.NewReader(csv))
	require.Error(t, err)
}

func TestSeries_Range(t *testing.T) {
	csv := "timestamp,open,high,low,close,volume\n" +
		"2023-01-01,10,11,9,10,100\n" +
		"2023-01-02,10,12,9,11,110\n" +
		"2023-01-03,10,12,9,12,120\n" +
		"2023-01-04,11,13,10,13,130\n"

	series, _, err := LoadFromReader(strings.NewReader(csv))
	require.NoError(t, err)

	bars := series.Range(series.At(1).Timestamp, series.At(2).Timestamp)
	require.Len(t, bars, 2)
	assert.Equal(t, 11.0, bars[0].Close)
	assert.Equal(t, 12.0, bars[1].Close)
}

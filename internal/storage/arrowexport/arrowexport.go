// Package arrowexport serializes a completed backtest result's equity
// curve and trade log into Arrow IPC record batches, for a downstream
// analytics consumer that wants columnar access without re-parsing the
// JSON result DTO.
package arrowexport

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"fingraph-backtest/internal/kernel"
)

var equityCurveSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var tradeLogSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "side", Type: arrow.BinaryTypes.String},
	{Name: "quantity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// ExportEquityCurve serializes result.EquityCurve as a single Arrow IPC
// record batch.
func ExportEquityCurve(result *kernel.Result) ([]byte, error) {
	if len(result.EquityCurve) == 0 {
		return nil, fmt.Errorf("no equity points to export")
	}

	pool := memory.NewGoAllocator()

	tsBuilder := array.NewInt64Builder(pool)
	valueBuilder := array.NewFloat64Builder(pool)
	defer tsBuilder.Release()
	defer valueBuilder.Release()

	for _, pt := range result.EquityCurve {
		tsBuilder.Append(pt.TimestampMs)
		valueBuilder.Append(pt.Value)
	}

	tsArray := tsBuilder.NewInt64Array()
	valueArray := valueBuilder.NewFloat64Array()
	defer tsArray.Release()
	defer valueArray.Release()

	record := array.NewRecord(equityCurveSchema, []arrow.Array{tsArray, valueArray}, int64(len(result.EquityCurve)))
	defer record.Release()

	return writeIPC(equityCurveSchema, record)
}

// ExportTradeLog serializes result.Trades as a single Arrow IPC record
// batch.
func ExportTradeLog(result *kernel.Result) ([]byte, error) {
	if len(result.Trades) == 0 {
		return nil, fmt.Errorf("no trades to export")
	}

	pool := memory.NewGoAllocator()

	symbolBuilder := array.NewStringBuilder(pool)
	sideBuilder := array.NewStringBuilder(pool)
	qtyBuilder := array.NewFloat64Builder(pool)
	priceBuilder := array.NewFloat64Builder(pool)
	tsBuilder := array.NewInt64Builder(pool)
	defer symbolBuilder.Release()
	defer sideBuilder.Release()
	defer qtyBuilder.Release()
	defer priceBuilder.Release()
	defer tsBuilder.Release()

	for _, t := range result.Trades {
		symbolBuilder.Append(t.Symbol)
		sideBuilder.Append(t.Side.String())
		qtyBuilder.Append(t.Quantity)
		priceBuilder.Append(t.Price)
		tsBuilder.Append(t.Timestamp.UnixMilli())
	}

	symbolArray := symbolBuilder.NewStringArray()
	sideArray := sideBuilder.NewStringArray()
	qtyArray := qtyBuilder.NewFloat64Array()
	priceArray := priceBuilder.NewFloat64Array()
	tsArray := tsBuilder.NewInt64Array()
	defer symbolArray.Release()
	defer sideArray.Release()
	defer qtyArray.Release()
	defer priceArray.Release()
	defer tsArray.Release()

	record := array.NewRecord(tradeLogSchema, []arrow.Array{
		symbolArray, sideArray, qtyArray, priceArray, tsArray,
	}, int64(len(result.Trades)))
	defer record.Release()

	return writeIPC(tradeLogSchema, record)
}

func writeIPC(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	defer writer.Close()

	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	return buf.Bytes(), nil
}

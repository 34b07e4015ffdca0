// Package arrowpipeline moves bar tables and trade ledgers in and out of the
// Arrow IPC stream format.
package arrowpipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/engine"
)

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var ledgerSchema = arrow.NewSchema([]arrow.Field{
	{Name: "ticker", Type: arrow.BinaryTypes.String},
	{Name: "position_id", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "date", Type: arrow.BinaryTypes.String},
	{Name: "entry_time", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "exit_time", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "profit", Type: arrow.PrimitiveTypes.Float64},
	{Name: "force_closed", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

type Config struct {
	// BatchSize caps the rows per record batch. Zero writes one batch.
	BatchSize int `yaml:"batch_size"`
}

type Pipeline struct {
	config Config
	mem    memory.Allocator
	logger *zap.Logger
}

func NewPipeline(cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: cfg, mem: memory.NewGoAllocator(), logger: logger}
}

func (p *Pipeline) barRecord(symbol string, b []bars.Bar) arrow.Record {
	rb := array.NewRecordBuilder(p.mem, barSchema)
	defer rb.Release()

	for _, bar := range b {
		rb.Field(0).(*array.StringBuilder).Append(symbol)
		rb.Field(1).(*array.Uint64Builder).Append(uint64(bar.Time.UnixMilli()))
		rb.Field(2).(*array.Float64Builder).Append(bar.Open)
		rb.Field(3).(*array.Float64Builder).Append(bar.High)
		rb.Field(4).(*array.Float64Builder).Append(bar.Low)
		rb.Field(5).(*array.Float64Builder).Append(bar.Close)
		rb.Field(6).(*array.Float64Builder).Append(bar.Volume)
	}
	return rb.NewRecord()
}

// WriteTable streams t as one or more record batches.
func (p *Pipeline) WriteTable(w io.Writer, symbol string, t *bars.Table) error {
	all := t.Bars()
	if len(all) == 0 {
		return fmt.Errorf("no bars to convert")
	}
	writer := ipc.NewWriter(w, ipc.WithSchema(barSchema), ipc.WithAllocator(p.mem))

	size := p.config.BatchSize
	if size <= 0 {
		size = len(all)
	}
	for lo := 0; lo < len(all); lo += size {
		hi := min(lo+size, len(all))
		rec := p.barRecord(symbol, all[lo:hi])
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
	}
	p.logger.Debug("Wrote Arrow table", zap.String("symbol", symbol), zap.Int("rows", len(all)))
	return writer.Close()
}

// ReadTable decodes a bar stream written by WriteTable.
func (p *Pipeline) ReadTable(r io.Reader, tf bars.Timeframe) (*bars.Table, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(p.mem), ipc.WithSchema(barSchema))
	if err != nil {
		return nil, fmt.Errorf("open Arrow stream: %w", err)
	}
	defer reader.Release()

	var out []bars.Bar
	for reader.Next() {
		rec := reader.Record()
		ts := rec.Column(1).(*array.Uint64).Uint64Values()
		open := rec.Column(2).(*array.Float64).Float64Values()
		high := rec.Column(3).(*array.Float64).Float64Values()
		low := rec.Column(4).(*array.Float64).Float64Values()
		closes := rec.Column(5).(*array.Float64).Float64Values()
		vol := rec.Column(6).(*array.Float64).Float64Values()
		for i := range ts {
			out = append(out, bars.Bar{
				Time:   time.UnixMilli(int64(ts[i])).UTC(),
				Open:   open[i],
				High:   high[i],
				Low:    low[i],
				Close:  closes[i],
				Volume: vol[i],
			})
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read Arrow stream: %w", err)
	}
	return bars.NewTable(tf, out)
}

// WriteLedger streams the trades of one ticker.
func (p *Pipeline) WriteLedger(w io.Writer, ticker string, l engine.Ledger) error {
	rb := array.NewRecordBuilder(p.mem, ledgerSchema)
	defer rb.Release()

	for _, t := range l {
		rb.Field(0).(*array.StringBuilder).Append(ticker)
		rb.Field(1).(*array.Uint32Builder).Append(uint32(t.PositionID))
		rb.Field(2).(*array.StringBuilder).Append(t.Date)
		rb.Field(3).(*array.Uint64Builder).Append(uint64(t.EntryTime.UnixMilli()))
		rb.Field(4).(*array.Uint64Builder).Append(uint64(t.ExitTime.UnixMilli()))
		rb.Field(5).(*array.Float64Builder).Append(t.EntryPrice)
		rb.Field(6).(*array.Float64Builder).Append(t.ExitPrice)
		rb.Field(7).(*array.Float64Builder).Append(t.Profit)
		rb.Field(8).(*array.BooleanBuilder).Append(t.ForceClosed)
	}
	rec := rb.NewRecord()
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(ledgerSchema), ipc.WithAllocator(p.mem))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write Arrow record: %w", err)
	}
	return writer.Close()
}

// ReadLedger decodes a ledger stream. Index fields are not carried.
func (p *Pipeline) ReadLedger(r io.Reader) (string, engine.Ledger, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(p.mem), ipc.WithSchema(ledgerSchema))
	if err != nil {
		return "", nil, fmt.Errorf("open Arrow stream: %w", err)
	}
	defer reader.Release()

	var ticker string
	l := engine.Ledger{}
	for reader.Next() {
		rec := reader.Record()
		tickers := rec.Column(0).(*array.String)
		ids := rec.Column(1).(*array.Uint32)
		dates := rec.Column(2).(*array.String)
		entryT := rec.Column(3).(*array.Uint64)
		exitT := rec.Column(4).(*array.Uint64)
		entryP := rec.Column(5).(*array.Float64)
		exitP := rec.Column(6).(*array.Float64)
		profit := rec.Column(7).(*array.Float64)
		forced := rec.Column(8).(*array.Boolean)
		for i := 0; i < int(rec.NumRows()); i++ {
			ticker = tickers.Value(i)
			l = append(l, engine.Trade{
				PositionID:  int(ids.Value(i)),
				Date:        dates.Value(i),
				EntryTime:   time.UnixMilli(int64(entryT.Value(i))).UTC(),
				ExitTime:    time.UnixMilli(int64(exitT.Value(i))).UTC(),
				EntryPrice:  entryP.Value(i),
				ExitPrice:   exitP.Value(i),
				Profit:      profit.Value(i),
				ForceClosed: forced.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read Arrow stream: %w", err)
	}
	return ticker, l, nil
}

// Tables pairs a symbol with one of its bar tables for StreamTables.
type Tables struct {
	Symbol string
	Table  *bars.Table
}

// StreamTables writes every table received on in to the writer open returns
// for it, until in closes. Each writer is closed after its table.
func (p *Pipeline) StreamTables(ctx context.Context, in <-chan Tables, open func(Tables) (io.WriteCloser, error)) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case t, ok := <-in:
			if !ok {
				return n, nil
			}
			w, err := open(t)
			if err != nil {
				return n, fmt.Errorf("stream %s: %w", t.Symbol, err)
			}
			err = p.WriteTable(w, t.Symbol, t.Table)
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return n, fmt.Errorf("stream %s %s: %w", t.Symbol, t.Table.Timeframe(), err)
			}
			n++
		}
	}
}

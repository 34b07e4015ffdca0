package arrowpipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/engine"
)

// FileProvider serves bars from <Dir>/<SYMBOL>_<tf>.arrow.
type FileProvider struct {
	Dir      string
	pipeline *Pipeline
}

func NewFileProvider(dir string, p *Pipeline) *FileProvider {
	return &FileProvider{Dir: dir, pipeline: p}
}

func (f *FileProvider) Path(symbol string, tf bars.Timeframe) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%s.arrow", strings.ToUpper(symbol), tf))
}

func (f *FileProvider) GetTimeframes(ctx context.Context, symbol string, from, to time.Time, tfs []bars.Timeframe) (bars.Dataset, error) {
	ds := make(bars.Dataset, len(tfs))
	for _, tf := range tfs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := f.load(symbol, tf)
		if err != nil {
			return nil, err
		}
		ds[tf] = t.Slice(from, to)
	}
	return ds, nil
}

func (f *FileProvider) load(symbol string, tf bars.Timeframe) (*bars.Table, error) {
	file, err := os.Open(f.Path(symbol, tf))
	if os.IsNotExist(err) {
		return nil, &bars.MissingTimeframeError{Timeframe: tf}
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return f.pipeline.ReadTable(file, tf)
}

// Save writes t to the path GetTimeframes reads it from.
func (f *FileProvider) Save(symbol string, t *bars.Table) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	file, err := os.Create(f.Path(symbol, t.Timeframe()))
	if err != nil {
		return err
	}
	defer file.Close()
	if err := f.pipeline.WriteTable(file, strings.ToUpper(symbol), t); err != nil {
		return err
	}
	return file.Close()
}

// SaveAll saves every table received on in until it closes.
func (f *FileProvider) SaveAll(ctx context.Context, in <-chan Tables) (int, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return 0, err
	}
	return f.pipeline.StreamTables(ctx, in, func(t Tables) (io.WriteCloser, error) {
		return os.Create(f.Path(t.Symbol, t.Table.Timeframe()))
	})
}

func (f *FileProvider) LedgerPath(ticker, entryID, exitID string) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%s_%s.arrow", strings.ToUpper(ticker), entryID, exitID))
}

// SaveLedger writes one ticker's ledger and returns the file path.
func (f *FileProvider) SaveLedger(ticker, entryID, exitID string, l engine.Ledger) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", err
	}
	path := f.LedgerPath(ticker, entryID, exitID)
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if err := f.pipeline.WriteLedger(file, ticker, l); err != nil {
		return "", err
	}
	return path, file.Close()
}

// LoadLedger reads a ledger file written by SaveLedger.
func LoadLedger(p *Pipeline, path string) (string, engine.Ledger, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	return p.ReadLedger(file)
}

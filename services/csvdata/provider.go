package csvdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

// DirProvider serves bars from <Dir>/<SYMBOL>_<tf>.csv. With Resample set,
// a timeframe without its own file is built from the finest file available.
type DirProvider struct {
	Dir      string
	Resample bool
	Logger   *zap.Logger
}

func NewDirProvider(dir string, resample bool, log *zap.Logger) *DirProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirProvider{Dir: dir, Resample: resample, Logger: log}
}

func (p *DirProvider) Path(symbol string, tf bars.Timeframe) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf))
}

func (p *DirProvider) load(symbol string, tf bars.Timeframe) (*bars.Table, bool, error) {
	t, err := LoadFile(p.Path(symbol, tf), tf)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if gaps := t.DetectGaps(); len(gaps) > 0 {
		p.Logger.Warn("Gaps in bar file",
			zap.String("path", p.Path(symbol, tf)),
			zap.Int("gaps", len(gaps)),
			zap.Time("first_gap", t.Times()[gaps[0]]))
	}
	return t, true, nil
}

func (p *DirProvider) GetTimeframes(ctx context.Context, symbol string, from, to time.Time, tfs []bars.Timeframe) (bars.Dataset, error) {
	ds := bars.Dataset{}
	var missing []bars.Timeframe
	for _, tf := range tfs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, ok, err := p.load(symbol, tf)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, tf)
			continue
		}
		ds[tf] = t
	}

	if len(missing) > 0 {
		if !p.Resample {
			return nil, &bars.MissingTimeframeError{Timeframe: missing[0]}
		}
		for _, tf := range bars.Timeframes {
			if _, have := ds[tf]; have {
				continue
			}
			if _, err := os.Stat(p.Path(symbol, tf)); err != nil {
				continue
			}
			t, ok, err := p.load(symbol, tf)
			if err != nil {
				return nil, err
			}
			if ok {
				ds[tf] = t
				break
			}
		}
		var err error
		if ds, err = bars.ResampleDataset(ds, missing); err != nil {
			return nil, err
		}
		p.Logger.Debug("Resampled missing timeframes", zap.String("symbol", symbol), zap.Int("count", len(missing)))
	}

	out := make(bars.Dataset, len(tfs))
	for _, tf := range tfs {
		out[tf] = ds[tf].Slice(from, to)
	}
	return out, nil
}

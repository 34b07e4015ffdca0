package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

// MemoryProvider serves preloaded datasets, e.g. for tests or for a CLI run
// that loaded everything up front.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]bars.Dataset
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]bars.Dataset)}
}

func (p *MemoryProvider) Add(symbol string, ds bars.Dataset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[strings.ToUpper(symbol)] = ds
}

func (p *MemoryProvider) GetTimeframes(ctx context.Context, symbol string, from, to time.Time, tfs []bars.Timeframe) (bars.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	ds, ok := p.data[strings.ToUpper(symbol)]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no data for symbol %q", symbol)
	}
	out := make(bars.Dataset, len(tfs))
	for _, tf := range tfs {
		t, err := ds.Table(tf)
		if err != nil {
			return nil, err
		}
		out[tf] = t.Slice(from, to)
	}
	return out, nil
}

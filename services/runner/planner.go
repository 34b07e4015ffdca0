package runner

// Run planner and admission control

import (
	"sync"
	"time"
)

type Chunk struct {
	Tickers []string
	From    time.Time
	To      time.Time
}

type Planner struct {
	MaxChunkSize int
	MaxWorkers   int
}

func NewPlanner(maxChunkSize, maxWorkers int) *Planner {
	if maxChunkSize <= 0 {
		maxChunkSize = 1
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Planner{
		MaxChunkSize: maxChunkSize,
		MaxWorkers:   maxWorkers,
	}
}

// PlanChunks splits tickers by count, keeping request order.
func (p *Planner) PlanChunks(tickers []string, from, to time.Time) []Chunk {
	var chunks []Chunk
	for i := 0; i < len(tickers); i += p.MaxChunkSize {
		end := i + p.MaxChunkSize
		if end > len(tickers) {
			end = len(tickers)
		}
		chunks = append(chunks, Chunk{
			Tickers: tickers[i:end],
			From:    from,
			To:      to,
		})
	}
	return chunks
}

// Backpressure bounds the number of jobs accepted but not yet finished.
type Backpressure struct {
	mu           sync.Mutex
	MaxQueueSize int
	queueLen     int
}

func NewBackpressure(max int) *Backpressure {
	return &Backpressure{MaxQueueSize: max}
}

// TryAccept reserves a slot, reporting false when the queue is full.
func (bp *Backpressure) TryAccept() bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.queueLen >= bp.MaxQueueSize {
		return false
	}
	bp.queueLen++
	return true
}

func (bp *Backpressure) Release() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.queueLen > 0 {
		bp.queueLen--
	}
}

func (bp *Backpressure) Len() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.queueLen
}

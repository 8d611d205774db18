package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// EnginePool bounds concurrent engine calls across all sessions, so a burst
// of new sessions queues up instead of degrading the ones already streaming.
type EnginePool struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
}

func NewEnginePool(size int) *EnginePool {
	if size <= 0 {
		size = 1
	}

	return &EnginePool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Acquire blocks until a slot frees up or ctx expires.
func (p *EnginePool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire engine slot: %w", err)
	}

	p.inUse.Add(1)
	metrics.EngineSlotsInUse.Inc()

	return nil
}

func (p *EnginePool) Release() {
	p.inUse.Add(-1)
	metrics.EngineSlotsInUse.Dec()
	p.sem.Release(1)
}

// Available reports free slots. Momentary by nature, meant for health
// reporting.
func (p *EnginePool) Available() int {
	return int(p.size - p.inUse.Load())
}

func (p *EnginePool) Size() int {
	return int(p.size)
}

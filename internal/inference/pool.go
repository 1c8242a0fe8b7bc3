package inference

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"deltagate/pkg/status"
)

// Pool bounds concurrent engine invocations. Acquisition respects request
// context, so a caller that gives up waiting fails closed instead of
// queueing forever.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool builds a pool of the given size; zero or negative means NumCPU.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

func (p *Pool) acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return status.Wrap(status.CodeInternal, "worker_pool_saturated", err)
	}
	return nil
}

func (p *Pool) release() {
	p.sem.Release(1)
}

// Size reports the configured bound.
func (p *Pool) Size() int {
	return int(p.size)
}

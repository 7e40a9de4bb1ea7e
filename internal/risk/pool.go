package risk

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// BlockingPool runs blocking work on dedicated goroutines, at most size at a
// time, so slow lookups never occupy the caller's goroutine.
type BlockingPool struct {
	sem *semaphore.Weighted
}

func NewBlockingPool(size int) *BlockingPool {
	if size <= 0 {
		size = 1
	}
	return &BlockingPool{sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn on a pool goroutine with ctx, which keeps request-scoped values
// such as the correlation identifier. It returns early if ctx ends; the slot
// stays taken until fn itself returns.
func (p *BlockingPool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("blocking pool: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("blocking pool: panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package queue runs per-item work with a bounded number of concurrent
// workers, draining fully before returning. One item's failure never
// aborts sibling work; the queue collects failures and reports them
// alongside the successes. Retry is the processor's concern, not the
// queue's.
package queue

import (
	"context"
	"sync"
)

// Failure pairs an item with the error its processor returned.
type Failure[T any] struct {
	Item T
	Err  error
}

// Run processes items with at most concurrency workers. It returns the
// items that completed without error and a Failure per item whose
// processor returned one. Combined, the two lists cover every input item
// exactly once. Completion order across items is unspecified: scheduling
// is strictly first-available-slot.
func Run[T any](ctx context.Context, items []T, concurrency int, process func(context.Context, T) error) ([]T, []Failure[T]) {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}
	if len(items) == 0 {
		return nil, nil
	}

	work := make(chan T)

	var (
		mu        sync.Mutex
		succeeded []T
		failed    []Failure[T]
		wg        sync.WaitGroup
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				err := process(ctx, item)
				mu.Lock()
				if err != nil {
					failed = append(failed, Failure[T]{Item: item, Err: err})
				} else {
					succeeded = append(succeeded, item)
				}
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		work <- item
	}
	close(work)
	wg.Wait()

	return succeeded, failed
}

// Package workerpool provides simple concurrent processing utilities.
package workerpool

import (
	"context"
	"sync"
)

// Result pairs a work item with the outcome of processing it.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// Map runs process over items with at most workerCount concurrent calls and returns
// the results in input order. A failing item does not stop the others. Items that were
// not started before ctx is done carry ctx.Err().
func Map[T, R any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) (R, error),
) []Result[T, R] {
	results := make([]Result[T, R], len(items))
	if len(items) == 0 {
		return results
	}
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(items) {
		workerCount = len(items)
	}

	tasks := make(chan int, workerCount)
	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				value, err := process(ctx, items[idx])
				results[idx] = Result[T, R]{Item: items[idx], Value: value, Err: err}
			}
		}()
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				results[j] = Result[T, R]{Item: items[j], Err: ctx.Err()}
			}
			break feed
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()

	return results
}

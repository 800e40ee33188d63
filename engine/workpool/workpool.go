// Package workpool is a bounded task set: "wait for all, fail if any
// fails", with a cap of N concurrent workers. N == 0 or 1 runs
// serially, in submission order, so test doubles that expect a strict
// call order still pass.
package workpool

import "sync"

// Run executes fn(items[i]) for every i, bounded to at most n concurrent
// calls. It blocks until every call has returned, then returns the
// first non-nil error encountered (in item order), if any. n <= 1 runs
// everything serially on the caller's goroutine.
func Run[T any](n int, items []T, fn func(T) error) error {
	if n <= 1 {
		var first error
		for _, item := range items {
			if err := fn(item); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	sem := make(chan struct{}, n)
	var wg sync.WaitGroup
	errs := make([]error, len(items))
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(item)
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

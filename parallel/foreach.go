// Package parallel runs index-addressed work on a bounded number of goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForEachErr calls body(i) for every i in [0, length) with at most limit calls
// in flight, and waits for all of them. limit <= 0 means runtime.NumCPU().
// It returns the error of the lowest index that failed, so the result does
// not depend on scheduling.
func ForEachErr(length, limit int, body func(i int) error) error {
	if length <= 0 {
		return nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	errs := make([]error, length)
	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < length; i++ {
		g.Go(func() error {
			errs[i] = body(i)
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

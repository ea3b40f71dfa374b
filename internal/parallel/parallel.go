// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

// Package parallel runs independent tasks concurrently with a bound on how
// many run at once.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// InvokeN runs call n times concurrently with i=0, i=1, ..., i=n-1, at most
// limit at a time (limit <= 0 means runtime.NumCPU()). All calls run in a
// child of ctx. If any call returns an error, InvokeN cancels the child
// context, waits for the calls already started, and returns the first error.
// Calls not yet started when the context is cancelled are skipped.
func InvokeN(ctx context.Context, n, limit int, call func(ctx context.Context, i int) error) error {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return call(ctx, i)
		})
	}
	return g.Wait()
}

// Package taskrunner runs a bounded number of independent tasks
// concurrently and waits for all of them. The fork engine uses it to fan
// the TTL eviction sweep's per-fork discards out across goroutines
// instead of discarding forks one at a time.
package taskrunner

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner bounds how many of its tasks run at once.
type Runner struct {
	eg *errgroup.Group
}

// New returns a Runner whose tasks share ctx's cancellation and run at most
// maxConcurrent at a time. maxConcurrent <= 0 means unlimited.
func New(ctx context.Context, maxConcurrent int) (*Runner, context.Context) {
	eg, egCtx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		eg.SetLimit(maxConcurrent)
	}
	return &Runner{eg: eg}, egCtx
}

// Go enqueues task, blocking only if the concurrency limit is currently
// exhausted.
func (r *Runner) Go(task func() error) {
	r.eg.Go(task)
}

// Wait blocks until every enqueued task has returned, yielding the first
// non-nil error if any.
func (r *Runner) Wait() error {
	return r.eg.Wait()
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent tasks (the compilation of each partition) with bounded parallelism.
package workerspool

import (
	"context"
	"runtime"
	"sync"
)

// Pool of workers. A Pool can be reused for several Run calls, but not concurrently.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time. 1 runs the tasks inline.
	maxParallelism int
}

// New returns a Pool running at most maxParallelism tasks concurrently.
//
// If maxParallelism <= 0 it uses runtime.NumCPU(). If it is 1, tasks run inline, in order, in the
// goroutine calling Run.
func New(maxParallelism int) *Pool {
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
	}
	return &Pool{maxParallelism: maxParallelism}
}

// MaxParallelism is the limit of tasks running concurrently.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// IsInline returns whether tasks run in the goroutine calling Run.
func (w *Pool) IsInline() bool {
	return w.maxParallelism == 1
}

// Run executes task(ctx, ii) for ii in [0, numTasks), and returns the error of each task, indexed
// like the tasks.
//
// Tasks are started in order as workers become available. Once ctx is done, tasks not yet started
// are skipped and their error is ctx.Err(). Running tasks are expected to watch ctx themselves.
func (w *Pool) Run(ctx context.Context, numTasks int, task func(ctx context.Context, ii int) error) []error {
	errs := make([]error, numTasks)
	if w.IsInline() {
		for ii := range numTasks {
			if err := ctx.Err(); err != nil {
				errs[ii] = err
				continue
			}
			errs[ii] = task(ctx, ii)
		}
		return errs
	}

	slots := make(chan struct{}, w.maxParallelism)
	var wg sync.WaitGroup
	for ii := range numTasks {
		select {
		case <-ctx.Done():
			errs[ii] = ctx.Err()
			continue
		case slots <- struct{}{}:
		}
		if err := ctx.Err(); err != nil {
			<-slots
			errs[ii] = err
			continue
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()
			errs[ii] = task(ctx, ii)
		}()
	}
	wg.Wait()
	return errs
}

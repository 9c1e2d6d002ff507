// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pool provides a bounded worker pool for fanning out independent
// per-Job operations (submit, refresh_state) while
// preserving the "refresh all jobs before evaluating any of them" barrier
// guarantee the driver loop depends on.
package pool

import (
	"sync"
	"time"

	"github.com/Cloudac7/dpdispatcher/pkg/logging"
)

// Task is one unit of work submitted to a WorkerPool. The string it
// returns identifies the unit for stats/logging (typically a job hash).
type Task func() (id string, err error)

// Result records the outcome of one Task.
type Result struct {
	ID       string
	Err      error
	Duration time.Duration
}

// WorkerPool runs Tasks with bounded concurrency, collecting every Result
// before RunAll returns — this is what gives Submission.GetSubmissionState
// its barrier: every Job's refresh has finished before it returns. A failed
// Task does not undo the work of the others.
type WorkerPool struct {
	concurrency int
	logger      logging.Logger

	mu       sync.Mutex
	launched int64
	finished int64
}

// Config holds WorkerPool construction parameters.
type Config struct {
	// Concurrency bounds how many Tasks run at once (spec default: 8).
	Concurrency int
}

// DefaultConfig returns a Config matching Config.MaxConcurrentJobOps's default.
func DefaultConfig() *Config {
	return &Config{Concurrency: 8}
}

// New creates a WorkerPool. A nil config or non-positive Concurrency falls
// back to DefaultConfig.
func New(config *Config, logger logging.Logger) *WorkerPool {
	if config == nil || config.Concurrency <= 0 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WorkerPool{concurrency: config.Concurrency, logger: logger}
}

// RunAll executes every task with bounded concurrency and blocks until all
// have finished, returning one Result per task in the order the tasks were
// given. A panic inside a task is not recovered — callers must not panic.
func (p *WorkerPool) RunAll(tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for i, task := range tasks {
		sem <- struct{}{}
		p.mu.Lock()
		p.launched++
		p.mu.Unlock()

		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			id, err := task()
			results[i] = Result{ID: id, Err: err, Duration: time.Since(start)}

			p.mu.Lock()
			p.finished++
			p.mu.Unlock()

			if err != nil {
				p.logger.Warn("pool task failed", "id", id, "error", err)
			}
		}(i, task)
	}

	wg.Wait()
	return results
}

// Stats reports how many tasks this pool has launched and completed over
// its lifetime.
func (p *WorkerPool) Stats() (launched, finished int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launched, p.finished
}

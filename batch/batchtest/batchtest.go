// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package batchtest provides an in-memory Batch/Context double for testing
// the dispatch package without a real scheduler or transport. It is not a
// scheduler driver: it exists solely to exercise dispatch's state machine
// and driver loop under controlled, scriptable conditions.
package batchtest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Cloudac7/dpdispatcher/dispatch"
)

// StatusFunc decides what CheckStatus reports for a given job hash. It is
// called once per poll per job, letting a test script a job's state
// transitions (e.g. always return terminated to exercise retry exhaustion).
type StatusFunc func(jobHash string, callCount int) (dispatch.JobState, error)

// AlwaysRunningThenFinished is a StatusFunc that reports running for the
// first n calls, then finished forever after.
func AlwaysRunningThenFinished(n int) StatusFunc {
	return func(_ string, callCount int) (dispatch.JobState, error) {
		if callCount <= n {
			return dispatch.JobStateRunning, nil
		}
		return dispatch.JobStateFinished, nil
	}
}

// AlwaysTerminated is a StatusFunc that reports terminated unconditionally,
// used to drive the retry-exhaustion scenario.
func AlwaysTerminated(string, int) (dispatch.JobState, error) {
	return dispatch.JobStateTerminated, nil
}

// FlakyThenFinished is a StatusFunc that fails transport on the first
// failCalls calls, then reports finished, exercising RefreshState's
// transient-error backoff rather than the job-level resubmit path.
func FlakyThenFinished(failCalls int) StatusFunc {
	return func(_ string, callCount int) (dispatch.JobState, error) {
		if callCount <= failCalls {
			return "", errors.New("transient transport error")
		}
		return dispatch.JobStateFinished, nil
	}
}

// Batch is an in-memory dispatch.Batch. SubmitCount/StatusCount record how
// many times each job hash has been submitted/checked, for assertions.
type Batch struct {
	mu sync.Mutex

	ctx *Context

	StatusFn StatusFunc

	submitCount map[string]int
	statusCount map[string]int
}

// New creates a Batch backed by a fresh in-memory Context. statusFn decides
// what CheckStatus reports; pass nil for AlwaysRunningThenFinished(0), i.e.
// finished on the first check.
func New(statusFn StatusFunc) *Batch {
	if statusFn == nil {
		statusFn = AlwaysRunningThenFinished(0)
	}
	return &Batch{
		ctx:         NewContext(),
		StatusFn:    statusFn,
		submitCount: make(map[string]int),
		statusCount: make(map[string]int),
	}
}

// Submit records a submission and returns a synthetic job ID.
func (b *Batch) Submit(ctx context.Context, job *dispatch.Job) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hash := job.Hash()
	b.submitCount[hash]++
	return uuid.NewString(), nil
}

// CheckStatus delegates to StatusFn, tracking how many times this job has
// been checked so scripted StatusFuncs can vary their answer over time.
func (b *Batch) CheckStatus(ctx context.Context, job *dispatch.Job) (dispatch.JobState, error) {
	b.mu.Lock()
	hash := job.Hash()
	b.statusCount[hash]++
	count := b.statusCount[hash]
	b.mu.Unlock()

	return b.StatusFn(hash, count)
}

// Context returns the in-memory Context this Batch transmits files through.
func (b *Batch) Context() dispatch.Context { return b.ctx }

// FinishTagName returns the sentinel file name a finished task would write.
func (b *Batch) FinishTagName() string { return "tag_finished" }

// SubmitCount reports how many times Submit has been called for jobHash.
func (b *Batch) SubmitCount(jobHash string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitCount[jobHash]
}

// StatusCount reports how many times CheckStatus has been called for jobHash.
func (b *Batch) StatusCount(jobHash string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCount[jobHash]
}

// Context is an in-memory dispatch.Context: an entirely in-process file
// store standing in for a real remote working directory.
type Context struct {
	mu    sync.Mutex
	files map[string]string
	bound *dispatch.Submission
}

// NewContext creates an empty in-memory Context.
func NewContext() *Context {
	return &Context{files: make(map[string]string)}
}

// BindSubmission records which Submission this Context is serving.
func (c *Context) BindSubmission(ctx context.Context, sub *dispatch.Submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = sub
	return nil
}

// Upload is a no-op: there is nothing to transmit between two halves of
// the same process.
func (c *Context) Upload(ctx context.Context, sub *dispatch.Submission) error {
	return nil
}

// Download is a no-op, mirroring Upload.
func (c *Context) Download(ctx context.Context, sub *dispatch.Submission) error {
	return nil
}

// CheckFileExists reports whether name has been written to this Context.
func (c *Context) CheckFileExists(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[name]
	return ok, nil
}

// ReadFile returns the contents previously written to name.
func (c *Context) ReadFile(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[name], nil
}

// WriteFile stores contents under name, overwriting any prior value.
func (c *Context) WriteFile(ctx context.Context, name, contents string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[name] = contents
	return nil
}

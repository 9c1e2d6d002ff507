// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"time"

	"github.com/Cloudac7/dpdispatcher/pkg/logging"
	"github.com/Cloudac7/dpdispatcher/pkg/middleware"
)

// InstrumentBatch wraps batch so every Submit/CheckStatus call runs through
// a logging + timeout middleware chain, the same way an HTTP RoundTripper
// chain wraps individual requests. The wrapped Batch is otherwise
// behaviorally identical; its Context is left unwrapped.
func InstrumentBatch(batch Batch, logger logging.Logger, timeout time.Duration) Batch {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &instrumentedBatch{inner: batch, logger: logger, timeout: timeout}
}

type instrumentedBatch struct {
	inner   Batch
	logger  logging.Logger
	timeout time.Duration
}

func (b *instrumentedBatch) Submit(ctx context.Context, job *Job) (string, error) {
	var jobID string
	chain := middleware.Chain(
		middleware.WithTimeout(b.timeout),
		middleware.WithLogging(b.logger, "submit:"+job.Hash()),
	)
	err := chain(func(ctx context.Context) error {
		var err error
		jobID, err = b.inner.Submit(ctx, job)
		return err
	})(ctx)
	return jobID, err
}

func (b *instrumentedBatch) CheckStatus(ctx context.Context, job *Job) (JobState, error) {
	var state JobState
	chain := middleware.Chain(
		middleware.WithTimeout(b.timeout),
		middleware.WithLogging(b.logger, "check_status:"+job.Hash()),
	)
	err := chain(func(ctx context.Context) error {
		var err error
		state, err = b.inner.CheckStatus(ctx, job)
		return err
	})(ctx)
	return state, err
}

func (b *instrumentedBatch) Context() Context { return b.inner.Context() }

func (b *instrumentedBatch) FinishTagName() string { return b.inner.FinishTagName() }

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cloudac7/dpdispatcher/batch/batchtest"
	"github.com/Cloudac7/dpdispatcher/dispatch"
	"github.com/Cloudac7/dpdispatcher/pkg/logging"
)

func TestInstrumentBatch_DelegatesAndPreservesBehavior(t *testing.T) {
	sub := newSingleJobSubmission(t)
	job := sub.Jobs()[0]

	inner := batchtest.New(batchtest.AlwaysRunningThenFinished(0))
	instrumented := dispatch.InstrumentBatch(inner, logging.NoOpLogger{}, time.Second)

	ctx := context.Background()
	id, err := instrumented.Submit(ctx, job)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	state, err := instrumented.CheckStatus(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, dispatch.JobStateFinished, state)

	assert.Equal(t, "tag_finished", instrumented.FinishTagName())
	assert.NotNil(t, instrumented.Context())
	assert.Equal(t, 1, inner.SubmitCount(job.Hash()))
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	derrors "github.com/Cloudac7/dpdispatcher/pkg/errors"
	"github.com/Cloudac7/dpdispatcher/pkg/retry"
)

// checkStatusBackoff bounds the transient retries RefreshState allows a
// single CheckStatus call before surfacing the failure, separate from the
// job-level resubmit budget in HandleUnexpectedState.
func checkStatusBackoff() retry.BackoffStrategy {
	return retry.NewConstantBackoff(200*time.Millisecond, 3)
}

// JobState is the scheduler-reported state of a Job. Modeling it as a
// single string type (rather than a separate enum with a string escape
// hatch) keeps serialization and comparison uniform regardless of which
// scheduler backend produced the value.
type JobState string

const (
	JobStateUnsubmitted JobState = "unsubmitted"
	JobStateWaiting     JobState = "waiting"
	JobStateRunning     JobState = "running"
	JobStateCompleting  JobState = "completing"
	JobStateFinished    JobState = "finished"
	JobStateTerminated  JobState = "terminated"
	JobStateUnknown     JobState = "unknown"
)

// maxJobRetries is the retry budget: a Job that keeps coming back
// terminated gets 5 resubmits (6 total submit attempts) before the
// Submission aborts fatally. Submitting an unsubmitted Job does not count
// against the budget.
const maxJobRetries = 5

// Job is a bundle of Tasks submitted together as a single scheduler job. It
// is mutable only in its runtime triple (State, ID, FailCount); its task
// list and Resources are frozen once the Job is constructed by
// Submission.GenerateJobs.
type Job struct {
	Tasks     []*Task   `json:"job_task_list"`
	Resources Resources `json:"resources"`

	State     JobState `json:"job_state"`
	ID        string   `json:"job_id"`
	FailCount int      `json:"fail_count"`
}

// newJob constructs a Job in its initial unsubmitted state.
func newJob(tasks []*Task, resources Resources) *Job {
	return &Job{
		Tasks:     tasks,
		Resources: resources,
		State:     JobStateUnsubmitted,
	}
}

// jobStatic is the serialization shape used for hashing: it excludes the
// runtime triple so that job_hash is stable across state transitions.
type jobStatic struct {
	Tasks     []*Task   `json:"job_task_list"`
	Resources Resources `json:"resources"`
}

// Hash returns job_hash, the SHA1 of the Job's static serialization.
func (j *Job) Hash() string {
	return canonicalHash(jobStatic{Tasks: j.Tasks, Resources: j.Resources})
}

// ScriptFileName is the remote file name the Batch renders this Job's
// script to: {job_hash}.sub.
func (j *Job) ScriptFileName() string {
	return j.Hash() + ".sub"
}

// DebugSnapshotFileName is the supplemental per-Job snapshot name,
// {job_hash}_job.json. Never written by the driver loop itself; exposed for
// callers that want finer-grained recovery bookkeeping than the
// Submission-level snapshot provides.
func (j *Job) DebugSnapshotFileName() string {
	return j.Hash() + "_job.json"
}

// Submit asks batch to submit this Job and records the scheduler-assigned
// job ID.
func (j *Job) Submit(ctx context.Context, batch Batch) error {
	id, err := batch.Submit(ctx, j)
	if err != nil {
		wrapped := derrors.WrapError(err)
		wrapped.Details = "job submit failed"
		return wrapped.ForJob(j.Hash())
	}
	j.ID = id
	j.State = JobStateWaiting
	return nil
}

// RefreshState asks batch for this Job's current status and records it.
func (j *Job) RefreshState(ctx context.Context, batch Batch) error {
	state, err := retry.RetryWithResult(ctx, checkStatusBackoff(), func() (JobState, error) {
		return batch.CheckStatus(ctx, j)
	})
	if err != nil {
		wrapped := derrors.WrapError(err)
		wrapped.Details = "check status failed"
		return wrapped.ForJob(j.Hash())
	}
	j.State = state
	return nil
}

// HandleUnexpectedState runs the per-Job recovery state machine: unknown is
// fatal, terminated/unsubmitted are retry-budgeted resubmits, anything else
// is a no-op.
func (j *Job) HandleUnexpectedState(ctx context.Context, batch Batch) error {
	switch j.State {
	case JobStateUnknown:
		return derrors.New(derrors.ErrorCodeSchedulerUnknownState,
			fmt.Sprintf("job %s reported an unknown state", j.Hash())).ForJob(j.Hash())

	case JobStateTerminated, JobStateUnsubmitted:
		if j.State == JobStateTerminated {
			j.FailCount++
		}
		if j.FailCount > maxJobRetries {
			return derrors.New(derrors.ErrorCodeRetryBudgetExhausted,
				fmt.Sprintf("job %s exceeded retry budget of %d", j.Hash(), maxJobRetries)).ForJob(j.Hash())
		}
		if err := j.Submit(ctx, batch); err != nil {
			return err
		}
		return j.RefreshState(ctx, batch)

	default:
		return nil
	}
}

// WriteDebugSnapshot writes the supplemental per-Job snapshot file. Not
// invoked by the driver loop; available for callers that want it.
func (j *Job) WriteDebugSnapshot(ctx context.Context, fc Context) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return fc.WriteFile(ctx, j.DebugSnapshotFileName(), string(data))
}

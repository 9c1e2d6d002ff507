// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

import "context"

// Batch is the scheduler-facing half of a dispatcher backend: submitting a
// Job's script and asking the scheduler for its current state. Submission
// and Job never store a Batch — every operation that needs one takes it as
// an explicit parameter, so there is no back-reference to manage.
type Batch interface {
	// Submit renders job's script and hands it to the scheduler, returning
	// the scheduler-assigned job ID.
	Submit(ctx context.Context, job *Job) (jobID string, err error)

	// CheckStatus asks the scheduler for job's current state.
	CheckStatus(ctx context.Context, job *Job) (JobState, error)

	// Context returns the file-transfer half of this backend.
	Context() Context

	// FinishTagName returns the sentinel file name a task's wrapper script
	// writes on completion, e.g. "tag_finished".
	FinishTagName() string
}

// Context is the file-transfer half of a dispatcher backend: moving files
// to and from wherever a Job actually runs, independent of the scheduler
// used to run it.
type Context interface {
	// BindSubmission prepares remote state (e.g. the working directory) for
	// sub. Called once before any job in the submission is touched.
	BindSubmission(ctx context.Context, sub *Submission) error

	// Upload transmits sub's forward files to wherever its jobs will run.
	Upload(ctx context.Context, sub *Submission) error

	// Download retrieves sub's backward files from wherever its jobs ran.
	Download(ctx context.Context, sub *Submission) error

	// CheckFileExists reports whether name exists in the submission's
	// remote working directory.
	CheckFileExists(ctx context.Context, name string) (bool, error)

	// ReadFile returns the contents of name from the remote working
	// directory.
	ReadFile(ctx context.Context, name string) (string, error)

	// WriteFile writes contents to name in the remote working directory.
	WriteFile(ctx context.Context, name, contents string) error
}

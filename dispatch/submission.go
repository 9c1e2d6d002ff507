// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/Cloudac7/dpdispatcher/pkg/config"
	"github.com/Cloudac7/dpdispatcher/pkg/deadline"
	derrors "github.com/Cloudac7/dpdispatcher/pkg/errors"
	"github.com/Cloudac7/dpdispatcher/pkg/logging"
	"github.com/Cloudac7/dpdispatcher/pkg/metrics"
	"github.com/Cloudac7/dpdispatcher/pkg/pool"
	"github.com/Cloudac7/dpdispatcher/pkg/retry"
	"github.com/Cloudac7/dpdispatcher/pkg/watch"
)

// shuffleSeed is the fixed seed deterministic job grouping requires: it
// trades a true shuffle for cross-run reproducibility.
const shuffleSeed = 42

// Submission is the top-level aggregate: a work directory, the Resources
// every Job will get a copy of, the files shared by every Job, and the
// Tasks/Jobs registered against it. It never stores a Batch — operations
// that talk to one take it as an explicit parameter.
type Submission struct {
	WorkBase            string    `json:"work_base"`
	Resources           Resources `json:"resources"`
	ForwardCommonFiles  []string  `json:"forward_common_files"`
	BackwardCommonFiles []string  `json:"backward_common_files"`

	belongingTasks []*Task
	belongingJobs  []*Job
}

// NewSubmission constructs an empty Submission rooted at workBase.
func NewSubmission(workBase string, resources Resources, forwardCommonFiles, backwardCommonFiles []string) *Submission {
	return &Submission{
		WorkBase:            workBase,
		Resources:           resources,
		ForwardCommonFiles:  forwardCommonFiles,
		BackwardCommonFiles: backwardCommonFiles,
	}
}

// Tasks returns the registered tasks, in registration order.
func (s *Submission) Tasks() []*Task { return s.belongingTasks }

// Jobs returns the generated jobs, in generation order.
func (s *Submission) Jobs() []*Job { return s.belongingJobs }

// RegisterTask appends t to the submission's task list. It fails once any
// Job has been generated: task registration locks as soon as generation runs.
func (s *Submission) RegisterTask(t *Task) error {
	if len(s.belongingJobs) > 0 {
		return derrors.New(derrors.ErrorCodeRegistrationLocked,
			"cannot register a task after jobs have been generated")
	}
	s.belongingTasks = append(s.belongingTasks, t)
	return nil
}

// RegisterTaskList registers every task in ts, in order.
func (s *Submission) RegisterTaskList(ts []*Task) error {
	for _, t := range ts {
		if err := s.RegisterTask(t); err != nil {
			return err
		}
	}
	return nil
}

// GenerateJobs groups belongingTasks into Jobs of Resources.GroupSize,
// after a seed-42 shuffle of the task indices. Calling it twice on the same
// Submission recomputes the same grouping, since the seed and task list are
// unchanged; callers that want to regenerate should construct a fresh
// Submission instead.
func (s *Submission) GenerateJobs() error {
	n := len(s.belongingTasks)
	if n == 0 {
		return derrors.New(derrors.ErrorCodeInvalidConfiguration, "at least one task must be registered")
	}
	if s.Resources.GroupSize < 1 {
		return derrors.New(derrors.ErrorCodeInvalidConfiguration, "group_size must be a positive integer")
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(shuffleSeed))
	rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

	s.belongingJobs = nil
	groupSize := s.Resources.GroupSize
	for start := 0; start < n; start += groupSize {
		end := start + groupSize
		if end > n {
			end = n
		}
		tasks := make([]*Task, 0, end-start)
		for _, idx := range indices[start:end] {
			tasks = append(tasks, s.belongingTasks[idx])
		}
		s.belongingJobs = append(s.belongingJobs, newJob(tasks, *s.Resources.Clone()))
	}
	return nil
}

// submissionStatic is the serialization shape used for submission_hash: it
// excludes every Job's runtime triple, matching each Job's own static form.
type submissionStatic struct {
	WorkBase            string      `json:"work_base"`
	Resources           Resources   `json:"resources"`
	ForwardCommonFiles  []string    `json:"forward_common_files"`
	BackwardCommonFiles []string    `json:"backward_common_files"`
	Jobs                []jobStatic `json:"belonging_jobs"`
}

// Hash returns submission_hash, the SHA1 of the Submission's static
// serialization.
func (s *Submission) Hash() string {
	jobs := make([]jobStatic, len(s.belongingJobs))
	for i, j := range s.belongingJobs {
		jobs[i] = jobStatic{Tasks: j.Tasks, Resources: j.Resources}
	}
	return canonicalHash(submissionStatic{
		WorkBase:            s.WorkBase,
		Resources:           s.Resources,
		ForwardCommonFiles:  s.ForwardCommonFiles,
		BackwardCommonFiles: s.BackwardCommonFiles,
		Jobs:                jobs,
	})
}

// SnapshotFileName is the remote persistence file name, {submission_hash}.json.
func (s *Submission) SnapshotFileName() string {
	return s.Hash() + ".json"
}

// Equal reports static equality, ignoring all runtime state of its Jobs.
func (s *Submission) Equal(other *Submission) bool {
	return s.Hash() == other.Hash()
}

// BindBatch tells batch's Context about this submission's local/remote
// roots. Submission and Job hold no reference to batch afterward; every
// subsequent operation that needs one takes it as a parameter.
func (s *Submission) BindBatch(ctx context.Context, batch Batch) error {
	if batch == nil {
		return nil
	}
	return batch.Context().BindSubmission(ctx, s)
}

// poolFor builds a worker pool sized by cfg (or the package default if cfg
// is nil), used to fan out independent per-Job operations.
func poolFor(cfg *config.Config, logger logging.Logger) *pool.WorkerPool {
	var poolCfg *pool.Config
	if cfg != nil {
		poolCfg = &pool.Config{Concurrency: cfg.MaxConcurrentJobOps}
	}
	return pool.New(poolCfg, logger)
}

// GetSubmissionState refreshes every Job's status. Pure observer: it never
// submits or resubmits anything.
func (s *Submission) GetSubmissionState(ctx context.Context, batch Batch, cfg *config.Config, logger logging.Logger) error {
	p := poolFor(cfg, logger)
	tasks := make([]pool.Task, len(s.belongingJobs))
	for i, job := range s.belongingJobs {
		job := job
		tasks[i] = func() (string, error) {
			return job.Hash(), job.RefreshState(ctx, batch)
		}
	}
	for _, result := range p.RunAll(tasks) {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}

// CheckAllFinished refreshes state, snapshots to JSON if any Job is
// terminated/unknown, and reports whether every Job has reached finished.
func (s *Submission) CheckAllFinished(ctx context.Context, batch Batch, cfg *config.Config, logger logging.Logger) (bool, error) {
	if err := s.GetSubmissionState(ctx, batch, cfg, logger); err != nil {
		return false, err
	}

	allFinished := true
	needsSnapshot := false
	for _, job := range s.belongingJobs {
		switch job.State {
		case JobStateFinished:
			// no-op
		case JobStateTerminated, JobStateUnknown:
			needsSnapshot = true
			allFinished = false
		default:
			allFinished = false
		}
	}

	if needsSnapshot {
		if _, err := s.SubmissionToJSON(ctx, batch); err != nil {
			return false, err
		}
	}
	return allFinished, nil
}

// HandleUnexpectedSubmissionState calls HandleUnexpectedState on every Job
// in order, stopping at the first fatal error.
func (s *Submission) HandleUnexpectedSubmissionState(ctx context.Context, batch Batch) error {
	for _, job := range s.belongingJobs {
		if err := job.HandleUnexpectedState(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// SubmitAll submits every still-unsubmitted Job, fanned out across a
// worker pool. Supplements the original's implicit "submit everything on
// the first pass" behavior with an explicit, directly callable operation.
func (s *Submission) SubmitAll(ctx context.Context, batch Batch, cfg *config.Config, logger logging.Logger) error {
	p := poolFor(cfg, logger)
	var tasks []pool.Task
	for _, job := range s.belongingJobs {
		if job.State != JobStateUnsubmitted {
			continue
		}
		job := job
		tasks = append(tasks, func() (string, error) {
			return job.Hash(), job.Submit(ctx, batch)
		})
	}
	for _, result := range p.RunAll(tasks) {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}

// UploadJobs transmits the submission's forward common files via batch's
// Context, bounding each attempt with deadline.DefaultLongTimeout and
// retrying transient failures per cfg.TransportMaxRetries.
func (s *Submission) UploadJobs(ctx context.Context, batch Batch, cfg *config.Config) error {
	policy := retry.NewExponentialBackoffPolicy().WithMaxRetries(cfg.TransportMaxRetries)
	err := retry.Do(ctx, policy, func() error {
		opCtx, cancel := deadline.WithTimeout(ctx, deadline.OpUpload, nil)
		defer cancel()
		return batch.Context().Upload(opCtx, s)
	})
	if err != nil {
		wrapped := derrors.WrapError(err)
		wrapped.Details = "uploading forward common files"
		return wrapped
	}
	return nil
}

// DownloadJobs retrieves the submission's backward common files via batch's
// Context, bounding each attempt with deadline.DefaultLongTimeout and
// retrying transient failures per cfg.TransportMaxRetries.
func (s *Submission) DownloadJobs(ctx context.Context, batch Batch, cfg *config.Config) error {
	policy := retry.NewExponentialBackoffPolicy().WithMaxRetries(cfg.TransportMaxRetries)
	err := retry.Do(ctx, policy, func() error {
		opCtx, cancel := deadline.WithTimeout(ctx, deadline.OpDownload, nil)
		defer cancel()
		return batch.Context().Download(opCtx, s)
	})
	if err != nil {
		wrapped := derrors.WrapError(err)
		wrapped.Details = "downloading backward common files"
		return wrapped
	}
	return nil
}

// submissionSnapshot is the on-disk form: static fields plus each Job's
// runtime triple. Jobs are kept as an ordered list rather than a
// hash-keyed map: each entry is itself a single-entry {job_hash: {...}}
// mapping in spirit, but the Submission as a whole must preserve generation
// order, which a Go map cannot.
type submissionSnapshot struct {
	WorkBase            string            `json:"work_base"`
	Resources           Resources         `json:"resources"`
	ForwardCommonFiles  []string          `json:"forward_common_files"`
	BackwardCommonFiles []string          `json:"backward_common_files"`
	Jobs                []jobSnapshotItem `json:"belonging_jobs"`
}

type jobSnapshotItem struct {
	JobHash   string    `json:"job_hash"`
	Tasks     []*Task   `json:"job_task_list"`
	Resources Resources `json:"resources"`
	State     JobState  `json:"job_state"`
	ID        string    `json:"job_id"`
	FailCount int       `json:"fail_count"`
}

func (s *Submission) toSnapshot() submissionSnapshot {
	jobs := make([]jobSnapshotItem, len(s.belongingJobs))
	for i, job := range s.belongingJobs {
		jobs[i] = jobSnapshotItem{
			JobHash:   job.Hash(),
			Tasks:     job.Tasks,
			Resources: job.Resources,
			State:     job.State,
			ID:        job.ID,
			FailCount: job.FailCount,
		}
	}
	return submissionSnapshot{
		WorkBase:            s.WorkBase,
		Resources:           s.Resources,
		ForwardCommonFiles:  s.ForwardCommonFiles,
		BackwardCommonFiles: s.BackwardCommonFiles,
		Jobs:                jobs,
	}
}

// SubmissionToJSON serializes the Jobs' current in-memory state and writes
// it as the submission's snapshot file ({submission_hash}.json) via batch's
// Context, returning the bytes. It does not refresh job states first; with
// a nil batch it only returns the bytes.
func (s *Submission) SubmissionToJSON(ctx context.Context, batch Batch) ([]byte, error) {
	data, err := json.MarshalIndent(s.toSnapshot(), "", "  ")
	if err != nil {
		return nil, err
	}
	if batch != nil {
		if err := batch.Context().WriteFile(ctx, s.SnapshotFileName(), string(data)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// TryRecoverFromJSON looks for a snapshot matching this Submission's hash
// on batch's Context. If found and statically equal, it adopts the prior
// Jobs (including their runtime state) and rebinds batch. If found but
// statically unequal, it fails fatally: the caller's inputs drifted from
// the snapshot.
func (s *Submission) TryRecoverFromJSON(ctx context.Context, batch Batch) (bool, error) {
	name := s.SnapshotFileName()
	exists, err := batch.Context().CheckFileExists(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	contents, err := batch.Context().ReadFile(ctx, name)
	if err != nil {
		return false, err
	}

	var snap submissionSnapshot
	if err := json.Unmarshal([]byte(contents), &snap); err != nil {
		return false, derrors.WithCause(derrors.ErrorCodeRecoveryMismatch, "snapshot is not valid JSON", err)
	}

	recovered := &Submission{
		WorkBase:            snap.WorkBase,
		Resources:           snap.Resources,
		ForwardCommonFiles:  snap.ForwardCommonFiles,
		BackwardCommonFiles: snap.BackwardCommonFiles,
	}
	for _, item := range snap.Jobs {
		job := newJob(item.Tasks, item.Resources)
		job.State = item.State
		job.ID = item.ID
		job.FailCount = item.FailCount
		recovered.belongingJobs = append(recovered.belongingJobs, job)
	}

	if !s.Equal(recovered) {
		return false, derrors.New(derrors.ErrorCodeRecoveryMismatch,
			fmt.Sprintf("snapshot %s does not match the current submission's static inputs", name))
	}

	s.belongingJobs = recovered.belongingJobs
	return true, s.BindBatch(ctx, batch)
}

// LoadSubmissionFile reads a submission snapshot from a local path,
// reconstructing a Submission with no Batch bound. Offline inspection of a
// snapshot written by SubmissionToJSON, independent of any live backend.
func LoadSubmissionFile(path string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap submissionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	s := &Submission{
		WorkBase:            snap.WorkBase,
		Resources:           snap.Resources,
		ForwardCommonFiles:  snap.ForwardCommonFiles,
		BackwardCommonFiles: snap.BackwardCommonFiles,
	}
	for _, item := range snap.Jobs {
		job := newJob(item.Tasks, item.Resources)
		job.State = item.State
		job.ID = item.ID
		job.FailCount = item.FailCount
		s.belongingJobs = append(s.belongingJobs, job)
	}
	return s, nil
}

// RunResult is what Run returns instead of calling os.Exit: library code
// must leave process-exit decisions to its caller.
type RunResult struct {
	ExitCode int
	Err      error
}

// Exit codes the driver loop assigns to its outcome.
const (
	ExitSuccess     = 0
	ExitUserCancel  = 1
	ExitOrderlyExit = 2
	ExitOtherError  = 3
)

// Run drives a Submission through recovery, upload, submission, polling,
// and download, returning once every Job is finished or a fatal condition
// is hit. It never calls os.Exit; ExitCode communicates the outcome.
func (s *Submission) Run(ctx context.Context, batch Batch, cfg *config.Config, logger logging.Logger, collector metrics.Collector) *RunResult {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if collector == nil {
		collector = metrics.GetDefaultCollector()
	}

	recovered, err := s.TryRecoverFromJSON(ctx, batch)
	if err != nil {
		return &RunResult{ExitCode: ExitOtherError, Err: err}
	}
	if !recovered {
		if err := s.BindBatch(ctx, batch); err != nil {
			return &RunResult{ExitCode: ExitOtherError, Err: err}
		}
		if err := s.UploadJobs(ctx, batch, cfg); err != nil {
			return &RunResult{ExitCode: ExitOtherError, Err: err}
		}
		if err := s.HandleUnexpectedSubmissionState(ctx, batch); err != nil {
			return &RunResult{ExitCode: ExitOtherError, Err: err}
		}
		if _, err := s.SubmissionToJSON(ctx, batch); err != nil {
			return &RunResult{ExitCode: ExitOtherError, Err: err}
		}
	}

	poller := watch.NewPoller(cfg.PollInterval)
	interrupt, err := poller.Run(ctx, func(pollCtx context.Context) (bool, error) {
		start := time.Now()
		defer func() { collector.RecordPoll(time.Since(start)) }()
		finished, err := s.CheckAllFinished(pollCtx, batch, cfg, logger)
		if err != nil {
			return false, err
		}
		if finished {
			return true, nil
		}
		return false, s.HandleUnexpectedSubmissionState(pollCtx, batch)
	})

	switch interrupt {
	case watch.InterruptNone:
		if err := s.DownloadJobs(ctx, batch, cfg); err != nil {
			return &RunResult{ExitCode: ExitOtherError, Err: err}
		}
		collector.RecordSubmissionFinished(s.Hash(), ExitSuccess)
		return &RunResult{ExitCode: ExitSuccess}

	case watch.InterruptUserCancel:
		logger.Warn("submission interrupted by user cancellation, persisting snapshot",
			"submission_hash", s.Hash())
		if _, snapErr := s.SubmissionToJSON(ctx, batch); snapErr != nil {
			logger.Error("failed to persist snapshot after user cancellation",
				"submission_hash", s.Hash(), "error", snapErr)
		}
		collector.RecordSubmissionFinished(s.Hash(), ExitUserCancel)
		return &RunResult{ExitCode: ExitUserCancel, Err: err}

	case watch.InterruptOrderlyExit:
		logger.Warn("submission interrupted by orderly exit, persisting snapshot",
			"submission_hash", s.Hash())
		if _, snapErr := s.SubmissionToJSON(ctx, batch); snapErr != nil {
			logger.Error("failed to persist snapshot after orderly exit",
				"submission_hash", s.Hash(), "error", snapErr)
		}
		collector.RecordSubmissionFinished(s.Hash(), ExitOrderlyExit)
		return &RunResult{ExitCode: ExitOrderlyExit, Err: err}

	default:
		logger.Error("submission aborted by unexpected error, persisting snapshot",
			"submission_hash", s.Hash(), "error", err)
		if _, snapErr := s.SubmissionToJSON(ctx, batch); snapErr != nil {
			logger.Error("failed to persist snapshot after unexpected error",
				"submission_hash", s.Hash(), "error", snapErr)
		}
		collector.RecordSubmissionFinished(s.Hash(), ExitOtherError)
		return &RunResult{ExitCode: ExitOtherError, Err: err}
	}
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	derrors "github.com/Cloudac7/dpdispatcher/pkg/errors"
)

// Task is one command line plus its forward/backward file lists and log
// paths. Nothing in this package modifies a Task after NewTask returns it;
// its fields are exported for serialization and are not protected against
// modification by callers.
type Task struct {
	Command           string   `json:"command"`
	TaskWorkPath      string   `json:"task_work_path"`
	ForwardFiles      []string `json:"forward_files"`
	BackwardFiles     []string `json:"backward_files"`
	OutLog            string   `json:"outlog"`
	ErrLog            string   `json:"errlog"`
	TaskNeedResources float64  `json:"task_need_resources"`
}

// TaskOption configures an optional Task field. The defaults mirror the
// original's keyword defaults: outlog="log", errlog="err",
// task_need_resources=1.
type TaskOption func(*Task)

// WithForwardFiles sets the files transmitted before the task runs.
func WithForwardFiles(files ...string) TaskOption {
	return func(t *Task) { t.ForwardFiles = files }
}

// WithBackwardFiles sets the files retrieved after the task finishes.
func WithBackwardFiles(files ...string) TaskOption {
	return func(t *Task) { t.BackwardFiles = files }
}

// WithOutLog overrides the stdout log file name (default "log").
func WithOutLog(name string) TaskOption {
	return func(t *Task) { t.OutLog = name }
}

// WithErrLog overrides the stderr log file name (default "err").
func WithErrLog(name string) TaskOption {
	return func(t *Task) { t.ErrLog = name }
}

// WithNeedResources overrides the slot fraction this task consumes, in
// (0, 1]. The zero value from NewTask is replaced with 1 if never set.
func WithNeedResources(fraction float64) TaskOption {
	return func(t *Task) { t.TaskNeedResources = fraction }
}

// NewTask constructs a Task, applying opts over the defaults, and validates
// task_need_resources ∈ (0, 1].
func NewTask(command, taskWorkPath string, opts ...TaskOption) (*Task, error) {
	t := &Task{
		Command:           command,
		TaskWorkPath:      taskWorkPath,
		ForwardFiles:      []string{},
		BackwardFiles:     []string{},
		OutLog:            "log",
		ErrLog:            "err",
		TaskNeedResources: 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.TaskNeedResources <= 0 || t.TaskNeedResources > 1 {
		return nil, derrors.New(derrors.ErrorCodeInvalidConfiguration,
			"task_need_resources must be in (0, 1]")
	}
	return t, nil
}

// Hash returns the SHA1 of the task's canonical serialization.
func (t *Task) Hash() string {
	return canonicalHash(t)
}

// Equal reports structural equality by serialized form.
func (t *Task) Equal(other *Task) bool {
	return t.Hash() == other.Hash()
}

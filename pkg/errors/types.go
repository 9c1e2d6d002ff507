// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured, classified errors for dpdispatcher.
package errors

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrorCode represents structured error codes for the dispatcher.
type ErrorCode string

const (
	// Configuration errors: fatal at construction or pre-run, never retried.
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrorCodeRegistrationLocked   ErrorCode = "REGISTRATION_LOCKED"

	// Transport errors: surfaced as "unexpected error" from the polling loop.
	ErrorCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"

	// Scheduler errors.
	ErrorCodeSchedulerUnknownState ErrorCode = "SCHEDULER_UNKNOWN_STATE"

	// Retry budget.
	ErrorCodeRetryBudgetExhausted ErrorCode = "RETRY_BUDGET_EXHAUSTED"

	// Recovery.
	ErrorCodeRecoveryMismatch ErrorCode = "RECOVERY_MISMATCH"

	// Context and cancellation errors.
	ErrorCodeContextCanceled  ErrorCode = "CONTEXT_CANCELED"
	ErrorCodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"

	// Unknown or unclassified errors.
	ErrorCodeUnknown ErrorCode = "UNKNOWN"
)

// Display renders the error code in human-readable title case, e.g.
// "RETRY_BUDGET_EXHAUSTED" becomes "Retry Budget Exhausted", for use in
// log lines and CLI output where the raw constant reads too much like code.
func (c ErrorCode) Display() string {
	words := strings.ReplaceAll(string(c), "_", " ")
	return cases.Title(language.English).String(strings.ToLower(words))
}

// Display renders the error category in human-readable title case.
func (c ErrorCategory) Display() string {
	return cases.Title(language.English).String(strings.ToLower(string(c)))
}

// ErrorCategory groups related error codes for easier handling.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "CONFIGURATION"
	CategoryTransport     ErrorCategory = "TRANSPORT"
	CategoryScheduler     ErrorCategory = "SCHEDULER"
	CategoryRetry         ErrorCategory = "RETRY"
	CategoryRecovery      ErrorCategory = "RECOVERY"
	CategoryContext       ErrorCategory = "CONTEXT"
	CategoryUnknown       ErrorCategory = "UNKNOWN"
)

// DispatchError represents a structured error raised by the dispatcher.
type DispatchError struct {
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Details   string        `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	JobHash   string        `json:"job_hash,omitempty"`
	Retryable bool          `json:"retryable"`
	Cause     error         `json:"-"`
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category.Display(), e.Message)
	if e.JobHash != "" {
		msg = fmt.Sprintf("%s (job %s)", msg, e.JobHash)
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a specific error code.
func (e *DispatchError) Is(target error) bool {
	targetErr, ok := target.(*DispatchError)
	if !ok {
		return false
	}
	return e.Code == targetErr.Code
}

// IsRetryable returns true if the error indicates the operation can be retried.
func (e *DispatchError) IsRetryable() bool {
	return e.Retryable
}

// New creates a new structured dispatcher error.
func New(code ErrorCode, message string) *DispatchError {
	return &DispatchError{
		Code:      code,
		Category:  categoryOf(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: isRetryable(code),
	}
}

// Newf creates a new structured dispatcher error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *DispatchError {
	return New(code, fmt.Sprintf(format, args...))
}

// WithCause creates a new structured dispatcher error with an underlying cause.
func WithCause(code ErrorCode, message string, cause error) *DispatchError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// ForJob attaches a job_hash to the error, identifying which Job is at fault.
func (e *DispatchError) ForJob(jobHash string) *DispatchError {
	e.JobHash = jobHash
	return e
}

func categoryOf(code ErrorCode) ErrorCategory {
	switch code {
	case ErrorCodeInvalidConfiguration, ErrorCodeRegistrationLocked:
		return CategoryConfiguration
	case ErrorCodeTransportFailed:
		return CategoryTransport
	case ErrorCodeSchedulerUnknownState:
		return CategoryScheduler
	case ErrorCodeRetryBudgetExhausted:
		return CategoryRetry
	case ErrorCodeRecoveryMismatch:
		return CategoryRecovery
	case ErrorCodeContextCanceled, ErrorCodeDeadlineExceeded:
		return CategoryContext
	default:
		return CategoryUnknown
	}
}

func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrorCodeTransportFailed:
		return true
	default:
		return false
	}
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"context"
	stderrors "errors"
	"net"
	"net/url"
	"strings"
)

// WrapError converts a generic error returned by a Context/Batch call into a
// structured DispatchError, classifying it as a context, network, or
// transport-level failure. Job.Submit, Job.RefreshState, and
// Submission.UploadJobs/DownloadJobs all call this on the raw error a Batch
// or Context implementation returns before attaching job/operation context.
func WrapError(err error) *DispatchError {
	if err == nil {
		return nil
	}

	var dispatchErr *DispatchError
	if stderrors.As(err, &dispatchErr) {
		return dispatchErr
	}

	if stderrors.Is(err, context.Canceled) {
		return WithCause(ErrorCodeContextCanceled, "operation was canceled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return WithCause(ErrorCodeDeadlineExceeded, "operation timed out", err)
	}

	if netErr := classifyNetworkError(err); netErr != nil {
		return netErr
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return WithCause(ErrorCodeTransportFailed, "transport request failed: "+urlErr.Op, err)
	}

	return WithCause(ErrorCodeTransportFailed, err.Error(), err)
}

// classifyNetworkError identifies and wraps network-related transport failures.
func classifyNetworkError(err error) *DispatchError {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.Canceled) {
		return WithCause(ErrorCodeContextCanceled, "operation was canceled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return WithCause(ErrorCodeDeadlineExceeded, "operation deadline exceeded", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return WithCause(ErrorCodeTransportFailed, "network operation timed out", err)
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "network is unreachable"):
		return WithCause(ErrorCodeTransportFailed, "transport connection failure", err)
	}

	return nil
}

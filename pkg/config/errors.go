package config

import "errors"

var (
	// ErrMissingWorkBase is returned when the work base directory is not set.
	ErrMissingWorkBase = errors.New("work base directory is required")

	// ErrInvalidPollInterval is returned when the poll interval is not positive.
	ErrInvalidPollInterval = errors.New("poll interval must be greater than 0")

	// ErrInvalidMaxJobRetries is returned when max job retries is negative.
	ErrInvalidMaxJobRetries = errors.New("max job retries must be greater than or equal to 0")

	// ErrInvalidMaxConcurrentJobOps is returned when the concurrency bound is not positive.
	ErrInvalidMaxConcurrentJobOps = errors.New("max concurrent job ops must be greater than 0")
)

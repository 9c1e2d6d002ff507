// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll_AllSucceed(t *testing.T) {
	p := New(&Config{Concurrency: 2}, nil)

	tasks := []Task{
		func() (string, error) { return "job-a", nil },
		func() (string, error) { return "job-b", nil },
		func() (string, error) { return "job-c", nil },
	}

	results := p.RunAll(tasks)
	require.Len(t, results, 3)
	for i, want := range []string{"job-a", "job-b", "job-c"} {
		assert.Equal(t, want, results[i].ID)
		assert.NoError(t, results[i].Err)
	}
}

func TestRunAll_PartialFailureDoesNotAbortOthers(t *testing.T) {
	p := New(&Config{Concurrency: 3}, nil)
	boom := errors.New("scheduler unreachable")

	tasks := []Task{
		func() (string, error) { return "job-a", nil },
		func() (string, error) { return "job-b", boom },
		func() (string, error) { return "job-c", nil },
	}

	results := p.RunAll(tasks)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
}

func TestRunAll_RespectsConcurrencyBound(t *testing.T) {
	p := New(&Config{Concurrency: 2}, nil)

	var active int32
	var maxActive int32
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = func() (string, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				max := atomic.LoadInt32(&maxActive)
				if n <= max || atomic.CompareAndSwapInt32(&maxActive, max, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return "job", nil
		}
	}

	p.RunAll(tasks)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(2))
}

func TestRunAll_Empty(t *testing.T) {
	p := New(nil, nil)
	results := p.RunAll(nil)
	assert.Empty(t, results)
}

func TestStats(t *testing.T) {
	p := New(&Config{Concurrency: 4}, nil)
	tasks := []Task{
		func() (string, error) { return "job-a", nil },
		func() (string, error) { return "job-b", nil },
	}

	p.RunAll(tasks)
	launched, finished := p.Stats()
	assert.Equal(t, int64(2), launched)
	assert.Equal(t, int64(2), finished)
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, 8, DefaultConfig().Concurrency)
}

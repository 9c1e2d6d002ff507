// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_DoneOnFirstCheck(t *testing.T) {
	p := NewPoller(10 * time.Millisecond).WithSignals(false)
	calls := 0
	interrupt, err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, InterruptNone, interrupt)
	assert.Equal(t, 1, calls)
}

func TestPoller_DoneAfterSeveralTicks(t *testing.T) {
	p := NewPoller(5 * time.Millisecond).WithSignals(false)
	calls := 0
	interrupt, err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, InterruptNone, interrupt)
	assert.Equal(t, 3, calls)
}

func TestPoller_ErrorAborts(t *testing.T) {
	p := NewPoller(5 * time.Millisecond).WithSignals(false)
	boom := errors.New("transport failed")
	interrupt, err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		return false, boom
	})
	assert.Equal(t, InterruptError, interrupt)
	assert.ErrorIs(t, err, boom)
}

func TestPoller_ContextCancel(t *testing.T) {
	p := NewPoller(5 * time.Millisecond).WithSignals(false)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(12 * time.Millisecond)
		cancel()
	}()

	interrupt, err := p.Run(ctx, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	assert.Equal(t, InterruptOrderlyExit, interrupt)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestNewPoller_DefaultsInterval(t *testing.T) {
	p := NewPoller(0)
	assert.Equal(t, DefaultPollInterval, p.interval)
}

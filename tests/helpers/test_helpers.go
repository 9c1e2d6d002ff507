// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package helpers

import (
	"context"
	"testing"
	"time"
)

// TestContext returns a test context bounded by a generous timeout, so a
// driver loop test that hangs fails on its own rather than stalling the
// whole test binary.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	t.Cleanup(cancel)
	return ctx
}

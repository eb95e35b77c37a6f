// go-hce
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-hce.
//
// go-hce is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-hce is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-hce; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package hce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfigSucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return NewTimeoutError("op", "test")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfigStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	permanent := errors.New("boom")
	err := RetryWithConfig(context.Background(), fastRetry(5), func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfigReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetry(2), func() error {
		calls++
		return NewNoACKError("op", "test")
	})
	require.ErrorIs(t, err, ErrNoACK)
	assert.Equal(t, 2, calls)
}

func TestRetryWithConfigCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithConfig(ctx, fastRetry(3), func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithConfigNoRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	_ = RetryWithConfig(context.Background(), &RetryConfig{}, func() error {
		calls++
		return NewTimeoutError("op", "test")
	})
	assert.Equal(t, 1, calls)
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()

	c := &RetryConfig{BackoffMultiplier: 2, MaxBackoff: 5 * time.Second}
	assert.Equal(t, 200*time.Millisecond, c.NextBackoff(100*time.Millisecond))
	assert.Equal(t, 5*time.Second, c.NextBackoff(3*time.Second))
}

func TestJittered(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, jittered(base, 0))
	for range 20 {
		d := jittered(base, 0.5)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/2)
	}
}

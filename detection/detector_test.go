// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	delay     time.Duration
}

func (s *stubDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.devices, s.err
}

func (s *stubDetector) Transport() string {
	return s.transport
}

// Stub transports have unique names so tests select them through
// Options.Transports and never see each other.
func init() {
	RegisterDetector(&stubDetector{transport: "stub-found", devices: []DeviceInfo{
		{Transport: "stub-found", Path: "/dev/ttyUSB1", Confidence: Medium, Metadata: map[string]string{"vidpid": "1A86:7523"}},
		{Transport: "stub-found", Path: "/dev/ttyUSB0", Confidence: High},
	}})
	RegisterDetector(&stubDetector{transport: "stub-empty", err: ErrNoDevicesFound})
	RegisterDetector(&stubDetector{transport: "stub-broken", err: errors.New("bus exploded")})
	RegisterDetector(&stubDetector{transport: "stub-slow", delay: time.Minute})
}

func TestConfidenceString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want string
		c    Confidence
	}{
		{want: "low", c: Low},
		{want: "medium", c: Medium},
		{want: "high", c: High},
		{want: "unknown", c: Confidence(99)},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.c.String())
		})
	}
}

func TestDeviceInfoString(t *testing.T) {
	t.Parallel()

	d := DeviceInfo{Transport: "i2c", Path: "/dev/i2c-1:0x24", Confidence: High}
	assert.Equal(t, "i2c device at /dev/i2c-1:0x24 (confidence: high)", d.String())
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, Safe, opts.Mode)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.NotNil(t, opts.Blocklist)
}

func TestDetectAllSortsByConfidence(t *testing.T) {
	t.Parallel()

	devices, err := DetectAll(context.Background(), &Options{Transports: []string{"stub-found", "stub-empty"}})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, "/dev/ttyUSB1", devices[1].Path)
}

func TestDetectAllFilters(t *testing.T) {
	t.Parallel()

	devices, err := DetectAll(context.Background(), &Options{
		Transports: []string{"stub-found"},
		Blocklist:  []string{"1a86:7523"},
	})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)

	_, err = DetectAll(context.Background(), &Options{
		Transports:  []string{"stub-found"},
		Blocklist:   []string{"1A86:7523"},
		IgnorePaths: []string{"/dev/ttyUSB0"},
	})
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAllPartialFailure(t *testing.T) {
	t.Parallel()

	devices, err := DetectAll(context.Background(), &Options{Transports: []string{"stub-found", "stub-broken"}})
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	_, err = DetectAll(context.Background(), &Options{Transports: []string{"stub-broken", "stub-empty"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus exploded")
}

func TestDetectAllNoDevices(t *testing.T) {
	t.Parallel()

	_, err := DetectAll(context.Background(), &Options{Transports: []string{"stub-empty"}})
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAllNoDetectors(t *testing.T) {
	t.Parallel()

	_, err := DetectAll(context.Background(), &Options{Transports: []string{"spi"}})
	require.ErrorIs(t, err, ErrNoDetectors)
}

func TestDetectAllTimeout(t *testing.T) {
	t.Parallel()

	_, err := DetectAll(context.Background(), &Options{
		Transports: []string{"stub-slow"},
		Timeout:    20 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		vidpid    string
		blocklist []string
		want      bool
	}{
		{name: "exact", vidpid: "1A86:7523", blocklist: []string{"1A86:7523"}, want: true},
		{name: "case and space", vidpid: " 1a86:7523", blocklist: []string{"1A86:7523 "}, want: true},
		{name: "not listed", vidpid: "0403:6001", blocklist: []string{"1A86:7523"}, want: false},
		{name: "empty vidpid", vidpid: "", blocklist: []string{""}, want: false},
		{name: "empty list", vidpid: "1A86:7523", blocklist: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsBlocked(tt.vidpid, tt.blocklist))
		})
	}
}

func TestFormatVIDPID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10C4:EA60", FormatVIDPID("10c4", "ea60"))
	assert.Empty(t, FormatVIDPID("10c4", ""))
	assert.Empty(t, FormatVIDPID("", ""))
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "exact", path: "/dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "unclean", path: "/dev/ttyUSB0", ignore: []string{"/dev/../dev/ttyUSB0"}, want: true},
		{name: "windows case", path: "COM2", ignore: []string{"com2"}, want: true},
		{name: "other", path: "/dev/ttyUSB1", ignore: []string{"/dev/ttyUSB0"}, want: false},
		{name: "empty entries", path: "/dev/ttyUSB0", ignore: []string{""}, want: false},
		{name: "empty path", path: "", ignore: []string{""}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}

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

//nolint:paralleltest // tests swap package-level hooks
package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-hce/detection"
)

func stubBuses(t *testing.T, platform string, buses []string, answering map[string]bool) {
	t.Helper()
	origList, origProbe, origOS := listBuses, probe, goos
	t.Cleanup(func() { listBuses, probe, goos = origList, origProbe, origOS })

	goos = platform
	listBuses = func() ([]string, error) { return buses, nil }
	probe = func(_ context.Context, path string) bool { return answering[path] }
}

func TestDetectSafeMode(t *testing.T) {
	stubBuses(t, "linux", []string{"/dev/i2c-0", "/dev/i2c-1"}, map[string]bool{"/dev/i2c-1:0x24": true})

	devices, err := New().Detect(context.Background(), &detection.Options{Mode: detection.Safe})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/i2c-1:0x24", devices[0].Path)
	assert.Equal(t, "i2c-1", devices[0].Name)
	assert.Equal(t, detection.High, devices[0].Confidence)
}

func TestDetectPassiveModeListsBuses(t *testing.T) {
	stubBuses(t, "linux", []string{"/dev/i2c-0", "/dev/i2c-1"}, nil)

	devices, err := New().Detect(context.Background(), &detection.Options{
		Mode:        detection.Passive,
		IgnorePaths: []string{"/dev/i2c-0"},
	})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/i2c-1:0x24", devices[0].Path)
	assert.Equal(t, detection.Low, devices[0].Confidence)
}

func TestDetectNoBuses(t *testing.T) {
	stubBuses(t, "linux", nil, nil)

	_, err := New().Detect(context.Background(), &detection.Options{Mode: detection.Safe})
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetectUnsupportedPlatform(t *testing.T) {
	stubBuses(t, "darwin", []string{"/dev/i2c-1"}, nil)

	_, err := New().Detect(context.Background(), &detection.Options{})
	require.ErrorIs(t, err, detection.ErrUnsupportedPlatform)
}

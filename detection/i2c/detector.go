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

// Package i2c detects PN532 chips on Linux I2C buses.
package i2c

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/detection"
	"github.com/ZaparooProject/go-hce/transport/i2c"
)

const (
	// DefaultPN532Address is the standard I2C address for PN532 (0x48 >> 1)
	DefaultPN532Address = 0x24

	probeTimeout = time.Second
)

// Replaced in tests.
var (
	listBuses = func() ([]string, error) { return filepath.Glob("/dev/i2c-*") }
	probe     = probeFirmware
	goos      = runtime.GOOS
)

// detector implements the Detector interface for I2C devices
type detector struct{}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// Detect searches for PN532 devices on I2C buses. I2C has no descriptors,
// so Passive mode reports every bus with Low confidence and Safe mode
// keeps only buses where a PN532 answers at 0x24.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if goos != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	buses, err := listBuses()
	if err != nil {
		return nil, fmt.Errorf("failed to list I2C buses: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if err := ctx.Err(); err != nil {
			break
		}
		path := fmt.Sprintf("%s:0x%02x", bus, DefaultPN532Address)
		if detection.IsPathIgnored(bus, opts.IgnorePaths) || detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		device := detection.DeviceInfo{
			Transport:  "i2c",
			Path:       path,
			Name:       filepath.Base(bus),
			Confidence: detection.Low,
			Metadata:   map[string]string{"address": fmt.Sprintf("0x%02x", DefaultPN532Address)},
		}
		if opts.Mode == detection.Safe {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			ok := probe(probeCtx, path)
			cancel()
			if !ok {
				continue
			}
			device.Confidence = detection.High
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probeFirmware(ctx context.Context, path string) bool {
	transport, err := i2c.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	device, err := hce.New(transport)
	if err != nil {
		return false
	}
	_, err = device.GetFirmwareVersion(ctx)
	return err == nil
}

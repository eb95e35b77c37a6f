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

// Package spi detects PN532 chips wired to SPI ports.
package spi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/detection"
	"github.com/ZaparooProject/go-hce/transport/spi"
)

// EnvDevice names an SPI device to check in addition to the discovered ones
const EnvDevice = "HCE_SPI_DEVICE"

const probeTimeout = time.Second

// Config describes one configured SPI device
type Config struct {
	// Additional metadata
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device path (e.g., "/dev/spidev0.0")
	Device string `json:"device"`
	// Human-readable name
	Name string `json:"name,omitempty"`
}

// Replaced in tests.
var (
	listDevices = func() ([]string, error) { return filepath.Glob("/dev/spidev*") }
	configPaths = func() []string {
		paths := []string{"/etc/go-hce/spi.json"}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append([]string{filepath.Join(home, ".config", "go-hce", "spi.json")}, paths...)
		}
		return paths
	}
	getenv = os.Getenv
	probe  = probeFirmware
	goos   = runtime.GOOS
)

// detector implements the Detector interface for SPI devices
type detector struct{}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// Detect searches for PN532 devices on SPI ports. Configured devices come
// from a JSON file and HCE_SPI_DEVICE; on Linux every /dev/spidev* node is
// a candidate too. Like I2C, SPI has no descriptors: Passive mode reports
// candidates with Low confidence and Safe mode keeps those that answer.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	configs, err := gatherConfigs()
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		if goos != "linux" {
			return nil, detection.ErrUnsupportedPlatform
		}
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, config := range configs {
		if err := ctx.Err(); err != nil {
			break
		}
		path := spi.PathPrefix + config.Device
		if detection.IsPathIgnored(config.Device, opts.IgnorePaths) || detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		device := createDeviceInfo(config)
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

// gatherConfigs collects configured and discovered devices, first source
// winning on duplicates
func gatherConfigs() ([]Config, error) {
	var configs []Config
	configs = append(configs, loadConfigFile()...)
	if device := getenv(EnvDevice); device != "" {
		configs = append(configs, Config{Device: device, Name: "SPI device from " + EnvDevice})
	}

	if goos == "linux" {
		nodes, err := listDevices()
		if err != nil {
			return nil, fmt.Errorf("failed to list SPI devices: %w", err)
		}
		for _, node := range nodes {
			configs = append(configs, Config{Device: node})
		}
	}
	return deduplicateConfigs(configs), nil
}

// loadConfigFile reads the first readable config file. It holds either one
// Config or an array of them.
func loadConfigFile() []Config {
	for _, path := range configPaths() {
		data, err := os.ReadFile(path) //nolint:gosec // fixed config locations
		if err != nil {
			continue
		}

		var configs []Config
		if err := json.Unmarshal(data, &configs); err == nil {
			return configs
		}
		var config Config
		if err := json.Unmarshal(data, &config); err == nil && config.Device != "" {
			return []Config{config}
		}
		hce.Debugf("spi detection: ignoring malformed %s", path)
	}
	return nil
}

func deduplicateConfigs(configs []Config) []Config {
	seen := make(map[string]bool)
	var unique []Config
	for _, config := range configs {
		if config.Device == "" || seen[config.Device] {
			continue
		}
		seen[config.Device] = true
		unique = append(unique, config)
	}
	return unique
}

func createDeviceInfo(config Config) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "spi",
		Path:       spi.PathPrefix + config.Device,
		Name:       config.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string, len(config.Metadata)),
	}
	for k, v := range config.Metadata {
		device.Metadata[k] = v
	}
	if device.Name == "" {
		device.Name = filepath.Base(config.Device)
	}
	return device
}

func probeFirmware(ctx context.Context, path string) bool {
	transport, err := spi.New(path)
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

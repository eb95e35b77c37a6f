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

// Package uart detects PN532 boards behind USB serial bridges.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/detection"
	"github.com/ZaparooProject/go-hce/transport/uart"
)

const probeTimeout = 2 * time.Second

// USB serial bridges found on PN532 breakout boards.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var productKeywords = []string{"pn532", "nfc", "rfid", "13.56"}

// Replaced in tests.
var (
	listPorts = enumerator.GetDetailedPortsList
	probe     = probeFirmware
)

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports and keeps the ones that look like PN532
// boards. In Safe mode every USB port is probed and only ports that answer
// GetFirmwareVersion are returned.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			break
		}
		device, ok := examine(ctx, port, opts)
		if ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func examine(ctx context.Context, port *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	device := deviceInfo(port)
	if detection.IsPathIgnored(device.Path, opts.IgnorePaths) {
		return device, false
	}
	if detection.IsBlocked(device.Metadata["vidpid"], opts.Blocklist) {
		return device, false
	}

	switch opts.Mode {
	case detection.Passive:
		return device, device.Confidence >= detection.Medium
	case detection.Safe:
		// Built-in UARTs are left alone unless they are a known board.
		if !port.IsUSB && device.Confidence < detection.Medium {
			return device, false
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if !probe(probeCtx, device.Path) {
			return device, false
		}
		device.Confidence = detection.High
		return device, true
	default:
		return device, false
	}
}

func deviceInfo(port *enumerator.PortDetails) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Name,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if port.Product != "" {
		device.Name = port.Product
		device.Metadata["product"] = port.Product
	}
	if vidpid := detection.FormatVIDPID(port.VID, port.PID); vidpid != "" {
		device.Metadata["vidpid"] = vidpid
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if isLikelyPN532(port) {
		device.Confidence = detection.Medium
	}
	return device
}

// isLikelyPN532 checks if a serial port is likely to be a PN532 device
func isLikelyPN532(port *enumerator.PortDetails) bool {
	vidpid := detection.FormatVIDPID(port.VID, port.PID)
	for _, known := range knownBridges {
		if vidpid == known {
			return true
		}
	}

	product := strings.ToLower(port.Product)
	for _, keyword := range productKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// probeFirmware opens the port once and asks for the firmware version.
// Failures are not retried: a port that is not a PN532 gets one command
// and is left alone.
func probeFirmware(ctx context.Context, path string) bool {
	transport, err := uart.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	device, err := hce.New(transport)
	if err != nil {
		return false
	}
	fw, err := device.GetFirmwareVersion(ctx)
	if err != nil {
		hce.Debugf("detection: %s did not answer: %v", path, err)
		return false
	}
	hce.Debugf("detection: PN532 firmware %s at %s", fw.Version, path)
	return true
}

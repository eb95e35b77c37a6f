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
	"fmt"
	"time"
)

// PN532 command codes used in card emulation (User Manual §7).
const (
	cmdGetFirmwareVersion = 0x02
	cmdSetParameters      = 0x12
	cmdSamConfiguration   = 0x14
	cmdTgInitAsTarget     = 0x8C
	cmdTgGetData          = 0x86
	cmdTgSetData          = 0x8E
)

// SetParameters flags
const (
	paramAutomaticATRRes = 0x04
	paramAutomaticRATS   = 0x10
	paramISO14443PICC    = 0x20
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retries of the setup commands sent by Init
	RetryConfig *RetryConfig
	// Timeout is the transport read timeout
	Timeout time.Duration
}

// DefaultDeviceConfig returns the default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: DefaultRetryConfig(),
		Timeout:     time.Second,
	}
}

// Option configures a Device
type Option func(*Device) error

// WithTimeout sets the transport read timeout applied by Init
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// WithRetryConfig sets the retry policy of the setup commands
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = config
		return nil
	}
}

// FirmwareVersion describes the PN532 firmware
type FirmwareVersion struct {
	Version string
	IC      byte
	Support byte
}

// SupportsISO14443A reports whether the chip can emulate an ISO 14443-A card.
func (f *FirmwareVersion) SupportsISO14443A() bool {
	return f.Support&0x01 != 0
}

// Device is a PN532 driven as an ISO 14443-4 card (target mode).
//
// Device is NOT thread-safe. The target loop owns it; anything else must
// synchronise externally.
type Device struct {
	transport       Transport
	config          *DeviceConfig
	firmwareVersion *FirmwareVersion
	activated       bool
}

// New creates a Device on top of transport.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// FirmwareVersion returns the firmware reported during Init, nil before.
func (d *Device) FirmwareVersion() *FirmwareVersion {
	return d.firmwareVersion
}

// Init brings the PN532 up for card emulation: it reads the firmware
// version, leaves SAM in normal mode and lets the chip answer ATR and RATS
// by itself so only APDUs reach the host.
func (d *Device) Init(ctx context.Context) error {
	if err := d.transport.SetTimeout(d.config.Timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}

	err := RetryWithConfig(ctx, d.config.RetryConfig, func() error {
		fw, err := d.GetFirmwareVersion(ctx)
		if err != nil {
			return err
		}
		d.firmwareVersion = fw
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get firmware version: %w", err)
	}
	Debugf("PN532 firmware %s (IC 0x%02X, support 0x%02X)",
		d.firmwareVersion.Version, d.firmwareVersion.IC, d.firmwareVersion.Support)
	if !d.firmwareVersion.SupportsISO14443A() {
		Debugf("Warning: firmware does not advertise ISO 14443-A support")
	}

	if err := d.SAMConfiguration(ctx); err != nil {
		return err
	}
	return d.SetParameters(ctx, paramAutomaticATRRes|paramAutomaticRATS|paramISO14443PICC)
}

// GetFirmwareVersion queries the chip's firmware version
func (d *Device) GetFirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.transport.SendCommandWithContext(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send GetFirmwareVersion command: %w", err)
	}
	if len(res) < 5 || res[0] != cmdGetFirmwareVersion+1 {
		return nil, fmt.Errorf("%w: GetFirmwareVersion returned %s", ErrInvalidResponse, FormatHex(res))
	}
	return &FirmwareVersion{
		IC:      res[1],
		Version: fmt.Sprintf("%d.%d", res[2], res[3]),
		Support: res[4],
	}, nil
}

// SAMConfiguration puts the SAM in normal mode with the IRQ pin in use
func (d *Device) SAMConfiguration(ctx context.Context) error {
	res, err := d.transport.SendCommandWithContext(ctx, cmdSamConfiguration, []byte{0x01, 0x14, 0x01})
	if err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	if len(res) < 1 || res[0] != cmdSamConfiguration+1 {
		return fmt.Errorf("%w: SAMConfiguration returned %s", ErrInvalidResponse, FormatHex(res))
	}
	return nil
}

// SetParameters writes the PN532 internal parameter flags
func (d *Device) SetParameters(ctx context.Context, flags byte) error {
	res, err := d.transport.SendCommandWithContext(ctx, cmdSetParameters, []byte{flags})
	if err != nil {
		return fmt.Errorf("SetParameters failed: %w", err)
	}
	if len(res) < 1 || res[0] != cmdSetParameters+1 {
		return fmt.Errorf("%w: SetParameters returned %s", ErrInvalidResponse, FormatHex(res))
	}
	return nil
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport == nil {
		return nil
	}
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// checkStatus turns a target-mode status byte into an error. The two high
// bits carry the MI and NAD flags and are not part of the code.
func checkStatus(command string, status byte) error {
	code := status & 0x3F
	if code == 0 {
		return nil
	}
	return NewPN532Error(code, command, "")
}

var errShortResponse = errors.New("response too short")

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
	"fmt"
)

// Target mode bits of TgInitAsTarget
const (
	TargetModePassiveOnly = 0x01
	TargetModeDEPOnly     = 0x02
	TargetModePICCOnly    = 0x04
)

// maxTargetData is the largest DataOut TgSetData accepts.
const maxTargetData = 262

// TargetConfig is the ISO 14443-A identity presented to readers.
type TargetConfig struct {
	// SensRes is ATQA, little-endian as sent on air.
	SensRes [2]byte
	// NFCID1 is the last three UID bytes; the PN532 supplies the first.
	NFCID1 [3]byte
	// SelRes is SAK. Bit 0x20 announces ISO 14443-4 support.
	SelRes byte
	// Mode restricts which activations are accepted.
	Mode byte
}

// DefaultTargetConfig returns the identity of a passive ISO 14443-4 card.
func DefaultTargetConfig() TargetConfig {
	return TargetConfig{
		SensRes: [2]byte{0x04, 0x00},
		NFCID1:  [3]byte{0x12, 0x34, 0x56},
		SelRes:  0x20,
		Mode:    TargetModePassiveOnly | TargetModePICCOnly,
	}
}

// params encodes the TgInitAsTarget parameters. FeliCa, NFCID3t and the
// general and historical bytes are left empty.
func (c TargetConfig) params() []byte {
	p := make([]byte, 0, 37)
	p = append(p, c.Mode)
	p = append(p, c.SensRes[:]...)
	p = append(p, c.NFCID1[:]...)
	p = append(p, c.SelRes)
	p = append(p, make([]byte, 18)...) // FeliCaParams
	p = append(p, make([]byte, 10)...) // NFCID3t
	return append(p, 0x00, 0x00)       // LEN Gt, LEN Tk
}

// Activation describes how a reader activated the emulated card.
type Activation struct {
	// InitiatorCommand is the first frame the reader sent, as reported by
	// the PN532.
	InitiatorCommand []byte
	// Mode is the activated baud rate and framing byte.
	Mode byte
}

// InitAsTarget arms the PN532 as a card and blocks until a reader
// activates it or ctx ends.
func (d *Device) InitAsTarget(ctx context.Context, cfg TargetConfig) (*Activation, error) {
	d.activated = false
	res, err := d.transport.SendCommandWithContext(ctx, cmdTgInitAsTarget, cfg.params())
	if err != nil {
		return nil, fmt.Errorf("TgInitAsTarget failed: %w", err)
	}
	if len(res) < 2 || res[0] != cmdTgInitAsTarget+1 {
		return nil, fmt.Errorf("%w: TgInitAsTarget returned %s", ErrInvalidResponse, FormatHex(res))
	}
	d.activated = true
	return &Activation{
		Mode:             res[1],
		InitiatorCommand: append([]byte(nil), res[2:]...),
	}, nil
}

// GetData waits for the next command APDU from the reader.
func (d *Device) GetData(ctx context.Context) ([]byte, error) {
	if !d.activated {
		return nil, ErrNotActivated
	}
	res, err := d.transport.SendCommandWithContext(ctx, cmdTgGetData, nil)
	if err != nil {
		return nil, fmt.Errorf("TgGetData failed: %w", err)
	}
	if len(res) < 2 || res[0] != cmdTgGetData+1 {
		return nil, fmt.Errorf("%w: TgGetData: %w", ErrInvalidResponse, errShortResponse)
	}
	if err := checkStatus("TgGetData", res[1]); err != nil {
		d.releaseOn(err)
		return nil, err
	}
	return append([]byte(nil), res[2:]...), nil
}

// SetData sends a response APDU to the reader.
func (d *Device) SetData(ctx context.Context, data []byte) error {
	if !d.activated {
		return ErrNotActivated
	}
	if len(data) > maxTargetData {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrDataTooLarge, len(data), maxTargetData)
	}
	res, err := d.transport.SendCommandWithContext(ctx, cmdTgSetData, data)
	if err != nil {
		return fmt.Errorf("TgSetData failed: %w", err)
	}
	if len(res) < 2 || res[0] != cmdTgSetData+1 {
		return fmt.Errorf("%w: TgSetData: %w", ErrInvalidResponse, errShortResponse)
	}
	if err := checkStatus("TgSetData", res[1]); err != nil {
		d.releaseOn(err)
		return err
	}
	return nil
}

// Activated reports whether a reader currently holds the emulated card.
func (d *Device) Activated() bool {
	return d.activated
}

func (d *Device) releaseOn(err error) {
	if IsTargetReleased(err) {
		d.activated = false
	}
}

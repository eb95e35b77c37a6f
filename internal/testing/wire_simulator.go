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

// Package testing provides test utilities including a wire-level PN532
// simulator running in card emulation (target) mode.
//
// The VirtualPN532 type implements io.ReadWriter and simulates the PN532
// chip at the frame protocol level, as specified in the PN532 User Manual
// section 6.2. A reader in its field is scripted with Present.
package testing

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-hce/internal/frame"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

// PN532 command codes from PN532 User Manual §7 (Table 12)
const (
	cmdGetFirmwareVersion = 0x02 // §7.2.2
	cmdSetParameters      = 0x12 // §7.2.9
	cmdSAMConfiguration   = 0x14 // §7.2.10
	cmdTgInitAsTarget     = 0x8C // §7.3.14
	cmdTgGetData          = 0x86 // §7.3.16
	cmdTgSetData          = 0x8E // §7.3.17
)

// Status codes from PN532 User Manual §7.1 (Table 13)
const (
	StatusOK               = 0x00
	StatusDEPInvalidState  = 0x25
	StatusReleased         = 0x29
	StatusCardDisappeared  = 0x2B
	statusNotAllowed       = 0x26
	initiatorActivatedMode = 0x08 // 106 kbps, ISO 14443-4 PICC
)

// ErrNotArmed is returned by Present when no TgInitAsTarget is waiting
// for a reader.
var ErrNotArmed = errors.New("virtual PN532 is not armed as target")

// ErrReaderLeft is returned by Transceive once the reader session ended.
var ErrReaderLeft = errors.New("reader left the field")

// Transceive sends a command APDU to the emulated card and returns its
// response APDU.
type Transceive func(ctx context.Context, cmd []byte) ([]byte, error)

// SimulatorState tracks the internal state of the simulated PN532
type SimulatorState struct {
	SAMConfigured bool
	Armed         bool
	Activated     bool
	Parameters    byte
}

// Exchange is one command/response pair relayed between reader and card
type Exchange struct {
	Command  []byte
	Response []byte
}

// VirtualPN532 simulates a PN532 chip at the wire protocol level.
// It implements io.ReadWriter to plug directly into transport layer tests.
//
// Commands that wait for a reader (TgInitAsTarget, TgGetData) are
// acknowledged at once and answered when the reader acts.
type VirtualPN532 struct {
	targetParams    []byte
	lastResponse    []byte
	nextAPDU        []byte
	responses       chan []byte
	ready           chan struct{}
	exchanges       []Exchange
	commands        []byte
	rxBuffer        bytes.Buffer
	txBuffer        bytes.Buffer
	state           SimulatorState
	mu              syncutil.Mutex
	pending         byte
	releaseStatus   byte
	firmwareIC      byte
	firmwareVer     byte
	firmwareRev     byte
	firmwareSupport byte
	leaving         bool
	corruptNext     int
	dropNextACK     bool
}

// NewVirtualPN532 creates a new wire-level PN532 simulator with no reader
// in its field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{
		responses:     make(chan []byte, 1),
		ready:         make(chan struct{}, 1),
		releaseStatus: StatusReleased,
		// PN532 v1.6 (User Manual §7.2.2)
		firmwareIC:      0x32,
		firmwareVer:     0x01,
		firmwareRev:     0x06,
		firmwareSupport: 0x07,
	}
}

// Write implements io.Writer - receives data from the host controller.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader - returns response data to the host
// controller. It returns 0 bytes when nothing is pending.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// Ready is signalled whenever new response data becomes readable.
func (v *VirtualPN532) Ready() <-chan struct{} {
	return v.ready
}

// HasPendingResponse returns true if response data is waiting to be read.
// I2C and SPI use it for the ready status byte.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// SetFirmwareVersion configures the firmware version returned by GetFirmwareVersion.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmwareIC = ic
	v.firmwareVer = ver
	v.firmwareRev = rev
	v.firmwareSupport = support
}

// SetReleaseStatus sets the TgGetData status reported once a reader has
// left: StatusReleased (deselect) by default, or StatusCardDisappeared.
func (v *VirtualPN532) SetReleaseStatus(status byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseStatus = status
}

// CorruptNextResponses flips the data checksum of the next n response
// frames. A NACK from the host retransmits an intact copy.
func (v *VirtualPN532) CorruptNextResponses(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = n
}

// DropNextACK causes the simulator to not send ACK for the next command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// GetState returns the current simulator state.
func (v *VirtualPN532) GetState() SimulatorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// TargetParams returns the parameters of the last TgInitAsTarget.
func (v *VirtualPN532) TargetParams() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.targetParams...)
}

// Commands returns the command codes received so far, in order.
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// Exchanges returns every APDU pair relayed so far.
func (v *VirtualPN532) Exchanges() []Exchange {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Exchange(nil), v.exchanges...)
}

// Armed reports whether a TgInitAsTarget is waiting for a reader.
func (v *VirtualPN532) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending == cmdTgInitAsTarget
}

// WaitArmed blocks until the host has armed the chip as a target.
func (v *VirtualPN532) WaitArmed(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for !v.Armed() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Present brings a reader into the field. It activates the waiting target,
// runs script with a Transceive bound to the card, then takes the reader
// away so the next TgGetData reports the release status.
func (v *VirtualPN532) Present(ctx context.Context, script func(Transceive) error) error {
	v.mu.Lock()
	if v.pending != cmdTgInitAsTarget {
		v.mu.Unlock()
		return ErrNotArmed
	}
	v.pending = 0
	v.leaving = false
	v.state.Armed = false
	v.state.Activated = true
	v.sendResponse(cmdTgInitAsTarget, []byte{initiatorActivatedMode, 0xE0, 0x80})
	v.mu.Unlock()

	err := script(v.transceive)

	v.mu.Lock()
	v.leaving = true
	v.nextAPDU = nil
	if v.pending == cmdTgGetData {
		v.pending = 0
		v.release()
	}
	v.mu.Unlock()
	return err
}

func (v *VirtualPN532) transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	v.mu.Lock()
	if v.leaving || !v.state.Activated {
		v.mu.Unlock()
		return nil, ErrReaderLeft
	}
	if v.pending == cmdTgGetData {
		v.pending = 0
		v.sendResponse(cmdTgGetData, append([]byte{StatusOK}, cmd...))
	} else {
		v.nextAPDU = append([]byte(nil), cmd...)
	}
	v.mu.Unlock()

	select {
	case resp := <-v.responses:
		v.mu.Lock()
		v.exchanges = append(v.exchanges, Exchange{Command: append([]byte(nil), cmd...), Response: resp})
		v.mu.Unlock()
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release answers the pending TgGetData with the release status and ends
// the activation.
func (v *VirtualPN532) release() {
	v.state.Activated = false
	v.leaving = false
	v.sendResponse(cmdTgGetData, []byte{v.releaseStatus})
}

// processReceivedData parses frames from the receive buffer and generates responses.
func (v *VirtualPN532) processReceivedData() {
	for v.rxBuffer.Len() > 0 {
		f, n, err := frame.Parse(v.rxBuffer.Bytes())
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return
		case errors.Is(err, frame.ErrNoStartCode):
			// Wake-up bytes and preamble; keep a trailing 0x00 that may
			// start the next frame.
			data := v.rxBuffer.Bytes()
			keep := 0
			if data[len(data)-1] == frame.StartCode1 {
				keep = 1
			}
			v.rxBuffer.Next(len(data) - keep)
			return
		case err != nil:
			v.rxBuffer.Next(n)
			v.sendErrorFrame()
			continue
		}
		v.rxBuffer.Next(n)

		switch f.Kind {
		case frame.KindAck:
			v.abort()
		case frame.KindNack:
			if v.lastResponse != nil {
				v.write(v.lastResponse)
			}
		case frame.KindInformation:
			if f.TFI != frame.HostToPn532 || len(f.Payload) == 0 {
				v.sendErrorFrame()
				continue
			}
			v.processCommand(f.Payload[0], append([]byte(nil), f.Payload[1:]...))
		case frame.KindError:
			v.sendErrorFrame()
		}
	}
}

// abort cancels a command still waiting for the reader (§6.2.1.3: an ACK
// from the host aborts the current process).
func (v *VirtualPN532) abort() {
	if v.pending == cmdTgInitAsTarget {
		v.state.Armed = false
	}
	v.pending = 0
}

// processCommand handles a parsed command frame.
func (v *VirtualPN532) processCommand(cmd byte, params []byte) {
	v.commands = append(v.commands, cmd)
	if !v.dropNextACK {
		v.write(frame.AckFrame)
	}
	v.dropNextACK = false

	switch cmd {
	case cmdGetFirmwareVersion:
		v.sendResponse(cmd, []byte{v.firmwareIC, v.firmwareVer, v.firmwareRev, v.firmwareSupport})
	case cmdSAMConfiguration:
		v.handleSAMConfiguration(params)
	case cmdSetParameters:
		if len(params) != 1 {
			v.sendErrorFrame()
			return
		}
		v.state.Parameters = params[0]
		v.sendResponse(cmd, nil)
	case cmdTgInitAsTarget:
		v.handleTgInitAsTarget(params)
	case cmdTgGetData:
		v.handleTgGetData()
	case cmdTgSetData:
		v.handleTgSetData(params)
	default:
		// Unknown command - syntax error (§6.2.2.2.c)
		v.sendErrorFrame()
	}
}

func (v *VirtualPN532) handleSAMConfiguration(params []byte) {
	if len(params) < 1 || params[0] < 0x01 || params[0] > 0x04 {
		v.sendErrorFrame()
		return
	}
	v.state.SAMConfigured = true
	v.sendResponse(cmdSAMConfiguration, nil)
}

func (v *VirtualPN532) handleTgInitAsTarget(params []byte) {
	if len(params) < 37 {
		v.sendErrorFrame()
		return
	}
	v.targetParams = params
	v.state.Armed = true
	v.state.Activated = false
	v.pending = cmdTgInitAsTarget
}

func (v *VirtualPN532) handleTgGetData() {
	switch {
	case !v.state.Activated:
		v.sendResponse(cmdTgGetData, []byte{statusNotAllowed})
	case v.leaving:
		v.release()
	case v.nextAPDU != nil:
		apdu := v.nextAPDU
		v.nextAPDU = nil
		v.sendResponse(cmdTgGetData, append([]byte{StatusOK}, apdu...))
	default:
		v.pending = cmdTgGetData
	}
}

func (v *VirtualPN532) handleTgSetData(params []byte) {
	if !v.state.Activated {
		v.sendResponse(cmdTgSetData, []byte{StatusDEPInvalidState})
		return
	}
	v.sendResponse(cmdTgSetData, []byte{StatusOK})
	select {
	case v.responses <- params:
	default:
	}
}

// sendResponse builds and queues a response frame.
// Response command code = request command code + 1 (per PN532 protocol)
func (v *VirtualPN532) sendResponse(cmd byte, data []byte) {
	payload := append([]byte{cmd + 1}, data...)
	out, err := frame.BuildResponse(payload)
	if err != nil {
		v.sendErrorFrame()
		return
	}
	v.lastResponse = out
	if v.corruptNext > 0 {
		v.corruptNext--
		bad := append([]byte(nil), out...)
		bad[len(bad)-2] ^= 0xFF
		v.write(bad)
		return
	}
	v.write(out)
}

// sendErrorFrame sends the fixed syntax error frame (§6.2.1.5).
func (v *VirtualPN532) sendErrorFrame() {
	out, _ := frame.Build(frame.ErrorTFI, nil)
	v.lastResponse = out
	v.write(out)
}

func (v *VirtualPN532) write(data []byte) {
	v.txBuffer.Write(data)
	select {
	case v.ready <- struct{}{}:
	default:
	}
}

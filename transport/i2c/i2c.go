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

// Package i2c implements hce.Transport over the PN532 I2C interface.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/internal/frame"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

const (
	// PN532 7-bit I2C address (datasheet says 0x48, which is the 8-bit write
	// address including the R/W bit; periph.io and the Linux kernel expect the
	// 7-bit form: 0x48 >> 1 = 0x24).
	pn532Addr = 0x24

	// pn532Ready is the status byte the chip prepends to every read once
	// it has a frame for the host.
	pn532Ready = 0x01

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	cmdTgInitAsTarget = 0x8C
	cmdTgGetData      = 0x86

	defaultTimeout = time.Second
	maxNACKs       = 3
	minPoll        = time.Millisecond
	maxPoll        = 10 * time.Millisecond

	// maxFrameSize covers an extended frame: preamble, start code, extended
	// marker, LENM LENL LCS, data, DCS and postamble.
	maxFrameSize = 9 + frame.MaxExtendedDataLength
)

var errReadTimeout = errors.New("read deadline exceeded")

// Transport implements the hce.Transport interface for I2C communication
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // Held so Close() can release the OS file descriptor
	trace   *hce.TraceBuffer
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
}

// parseI2CPath extracts the bus path from a composite detection path.
// Accepts "/dev/i2c-1:0x24" (detection format) or "/dev/i2c-1" (bare bus).
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the named I2C bus and returns a transport for the PN532 on it.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	// Open I2C bus (strip address suffix from detection paths)
	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	return newWithBus(bus, busName), nil
}

func newWithBus(bus i2c.BusCloser, busName string) *Transport {
	return &Transport{
		dev:     &i2c.Dev{Addr: pn532Addr, Bus: bus},
		bus:     bus,
		busName: busName,
		timeout: defaultTimeout,
		trace:   hce.NewTraceBuffer("i2c", busName, 16),
	}
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCommandWithContext sends a command frame and returns the response.
// TgInitAsTarget and TgGetData wait for a reader, so their response wait
// ends only with ctx; a cancelled wait aborts the command with an ACK.
func (t *Transport) SendCommandWithContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil, hce.NewTransportClosedError("SendCommand", t.busName)
	}
	t.trace.Clear()

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, hce.NewDataTooLargeError("sendFrame", t.busName)
	}
	if err := t.write(out, fmt.Sprintf("Cmd 0x%02X", cmd)); err != nil {
		return nil, t.trace.WrapError(err)
	}
	if err := t.waitAck(ctx); err != nil {
		return nil, t.trace.WrapError(err)
	}

	res, err := t.receiveResponse(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			hce.Debugf("I2C: aborting command 0x%02X: %v", cmd, ctxErr)
			_ = t.write(frame.AckFrame, "abort")
			return nil, ctxErr
		}
		return nil, t.trace.WrapError(err)
	}
	return res, nil
}

// SetTimeout sets how long ACKs and responses of ordinary commands may take
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", hce.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the transport connection and releases the I2C bus file descriptor.
// Must be called when the transport is no longer needed to prevent file descriptor
// leaks that can corrupt the I2C bus on rapid destroy/recreate cycles.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bus == nil {
		return nil
	}
	err := t.bus.Close()
	t.bus = nil
	t.dev = nil // IsConnected() returns false after Close
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() hce.TransportType {
	return hce.TransportI2C
}

func (t *Transport) busError(op string, err error) error {
	if hce.IsFatal(err) {
		return hce.NewTransportError(op, t.busName, err, hce.ErrorTypePermanent)
	}
	return fmt.Errorf("I2C %s failed: %w", op, err)
}

func (t *Transport) write(data []byte, note string) error {
	t.trace.RecordTX(data, note)
	if err := t.dev.Tx(data, nil); err != nil {
		return t.busError("write", err)
	}
	return nil
}

// waitReady polls the status byte until the chip has a frame for the host.
// A zero deadline never expires.
func (t *Transport) waitReady(ctx context.Context, deadline time.Time) error {
	status := make([]byte, 1)
	delay := minPoll
	for {
		if err := t.dev.Tx(nil, status); err != nil {
			return t.busError("ready check", err)
		}
		if status[0] == pn532Ready {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return errReadTimeout
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, maxPoll)
	}
}

// readFrame reads one frame in a single transaction. Every read restarts
// at the beginning of the chip's output buffer, so a frame cannot be
// collected over several reads.
func (t *Transport) readFrame(size int) (frame.Frame, error) {
	buf := make([]byte, 1+size)
	if err := t.dev.Tx(nil, buf); err != nil {
		return frame.Frame{}, t.busError("read", err)
	}
	if buf[0] != pn532Ready {
		return frame.Frame{}, hce.NewTransportError("read", t.busName, hce.ErrTransportNotReady, hce.ErrorTypeTransient)
	}
	data := buf[1:]
	t.trace.RecordRX(data, "")

	f, _, err := frame.Parse(data)
	if errors.Is(err, frame.ErrNoStartCode) || errors.Is(err, frame.ErrIncomplete) {
		return frame.Frame{}, frame.ErrDataChecksum
	}
	return f, err
}

// waitAck waits for the ACK of the command just sent
func (t *Transport) waitAck(ctx context.Context) error {
	deadline := time.Now().Add(t.timeout)
	for {
		err := t.waitReady(ctx, deadline)
		if errors.Is(err, errReadTimeout) {
			return hce.NewNoACKError("waitAck", t.busName)
		} else if err != nil {
			return err
		}

		f, err := t.readFrame(len(frame.AckFrame))
		if err != nil {
			if errors.Is(err, frame.ErrLengthChecksum) || errors.Is(err, frame.ErrDataChecksum) {
				continue
			}
			return err
		}
		switch f.Kind {
		case frame.KindAck:
			return nil
		case frame.KindNack:
			return hce.NewTransportError("waitAck", t.busName, hce.ErrNACKReceived, hce.ErrorTypeTransient)
		case frame.KindError:
			return hce.NewFrameCorruptedError("waitAck", t.busName)
		case frame.KindInformation:
		}
	}
}

// receiveResponse reads the response to cmd, NACKing corrupted frames so
// the chip sends them again.
func (t *Transport) receiveResponse(ctx context.Context, cmd byte) ([]byte, error) {
	var deadline time.Time
	if cmd != cmdTgInitAsTarget && cmd != cmdTgGetData {
		deadline = time.Now().Add(t.timeout)
	}

	nacks := 0
	for {
		err := t.waitReady(ctx, deadline)
		if errors.Is(err, errReadTimeout) {
			return nil, hce.NewTimeoutError("receiveFrame", t.busName)
		} else if err != nil {
			return nil, err
		}

		f, err := t.readFrame(maxFrameSize)
		switch {
		case errors.Is(err, frame.ErrLengthChecksum), errors.Is(err, frame.ErrDataChecksum):
			if nacks == maxNACKs {
				return nil, hce.NewChecksumMismatchError("receiveFrame", t.busName)
			}
			nacks++
			if err := t.write(frame.NackFrame, "NACK"); err != nil {
				return nil, err
			}
			continue
		case err != nil:
			return nil, err
		}

		switch f.Kind {
		case frame.KindAck, frame.KindNack:
			continue
		case frame.KindError:
			return nil, hce.NewFrameCorruptedError("receiveFrame", t.busName)
		case frame.KindInformation:
		}
		if f.TFI != frame.Pn532ToHost || len(f.Payload) == 0 {
			return nil, hce.NewTransportError("receiveFrame", t.busName, hce.ErrInvalidResponse, hce.ErrorTypeTransient)
		}
		if f.Payload[0] != cmd+1 {
			hce.Debugf("I2C: skipping stale response %s", hce.FormatHex(f.Payload))
			continue
		}
		return append([]byte(nil), f.Payload...), nil
	}
}

// Ensure Transport implements hce.Transport
var _ hce.Transport = (*Transport)(nil)

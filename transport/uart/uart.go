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

// Package uart implements hce.Transport over a PN532 UART (HSU) link.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/internal/frame"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

// Commands whose response only comes once a reader acts. Their response
// wait is bounded by the caller's context alone.
const (
	cmdTgInitAsTarget = 0x8C
	cmdTgGetData      = 0x86
)

const (
	defaultTimeout = time.Second
	maxNACKs       = 3
	traceSize      = 16
)

// errReadTimeout marks a wait that ran past its deadline.
var errReadTimeout = errors.New("read deadline exceeded")

// Transport implements the hce.Transport interface for UART communication.
type Transport struct {
	port     serial.Port
	trace    *hce.TraceBuffer
	portName string
	rx       []byte
	readBuf  []byte
	timeout  time.Duration
	mu       syncutil.Mutex
	closed   bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// pollInterval is the serial read timeout: how long one Read blocks with
// no data before the transport rechecks its context and deadline.
func pollInterval() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName at 115200 8N1 and returns a UART transport.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

func newWithPort(port serial.Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(pollInterval()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  defaultTimeout,
		readBuf:  make([]byte, 512),
		trace:    hce.NewTraceBuffer("uart", portName, traceSize),
	}, nil
}

// SendCommandWithContext sends a command frame, waits for the ACK within
// the transport timeout, then waits for the response. TgInitAsTarget and
// TgGetData wait for a reader, so their response wait ends only with ctx.
// When ctx ends first, the pending command is aborted with an ACK.
func (t *Transport) SendCommandWithContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return nil, hce.NewTransportClosedError("SendCommand", t.portName)
	}
	t.trace.Clear()

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, hce.NewDataTooLargeError("sendFrame", t.portName)
	}
	if err := t.wakeUp(); err != nil {
		return nil, t.trace.WrapError(err)
	}
	if err := t.write(out, "command"); err != nil {
		return nil, t.trace.WrapError(err)
	}

	early, err := t.waitAck(ctx, cmd)
	if err != nil {
		return nil, t.trace.WrapError(err)
	}
	if early != nil {
		return early, nil
	}

	res, err := t.receiveResponse(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			hce.Debugf("UART: aborting command 0x%02X: %v", cmd, ctxErr)
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil && !t.closed
}

// Type returns the transport type
func (*Transport) Type() hce.TransportType {
	return hce.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return fmt.Errorf("UART %s drain failed: %w", operation, err)
		}
		time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
	}
	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// wakeUp wakes up the PN532 over UART
func (t *Transport) wakeUp() error {
	// Over UART, PN532 must be "woken up" by sending a 0x55
	// dummy byte followed by enough zeros to cover the wake-up delay
	wake := make([]byte, 16)
	wake[0] = 0x55
	n, err := t.port.Write(wake)
	if err != nil {
		return fmt.Errorf("UART wake up write failed: %w", err)
	} else if n != len(wake) {
		return hce.NewTransportWriteError("wakeUp", t.portName)
	}
	return t.drainWithRetry("wake up")
}

func (t *Transport) write(data []byte, note string) error {
	t.trace.RecordTX(data, note)
	n, err := t.port.Write(data)
	if err != nil {
		if hce.IsFatal(err) {
			return hce.NewTransportError("write", t.portName, err, hce.ErrorTypePermanent)
		}
		return fmt.Errorf("UART %s write failed: %w", note, err)
	} else if n != len(data) {
		return hce.NewTransportWriteError(note, t.portName)
	}
	return t.drainWithRetry(note)
}

// fill reads whatever the port has into the receive buffer. A read that
// times out with no data is not an error.
func (t *Transport) fill() error {
	n, err := t.port.Read(t.readBuf)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return nil
		}
		if hce.IsFatal(err) {
			return hce.NewTransportError("read", t.portName, err, hce.ErrorTypePermanent)
		}
		return fmt.Errorf("UART read failed: %w", err)
	}
	if n > 0 {
		t.trace.RecordRX(t.readBuf[:n], "")
		t.rx = append(t.rx, t.readBuf[:n]...)
	}
	return nil
}

// nextFrame returns the next frame on the wire, reading until one is
// complete, ctx ends or the deadline passes. A zero deadline never expires.
// Checksum errors are returned after the bad bytes are dropped.
func (t *Transport) nextFrame(ctx context.Context, deadline time.Time) (frame.Frame, error) {
	for {
		if len(t.rx) > 0 {
			f, n, err := frame.Parse(t.rx)
			switch {
			case err == nil:
				f.Payload = append([]byte(nil), f.Payload...)
				t.consume(n)
				return f, nil
			case errors.Is(err, frame.ErrNoStartCode):
				// Keep a trailing 0x00 that may begin the start code.
				if t.rx[len(t.rx)-1] == frame.StartCode1 {
					t.consume(len(t.rx) - 1)
				} else {
					t.consume(len(t.rx))
				}
			case !errors.Is(err, frame.ErrIncomplete):
				t.consume(n)
				return frame.Frame{}, err
			}
		}

		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return frame.Frame{}, errReadTimeout
		}
		if err := t.fill(); err != nil {
			return frame.Frame{}, err
		}
	}
}

func (t *Transport) consume(n int) {
	t.rx = append(t.rx[:0], t.rx[n:]...)
}

// waitAck waits for the ACK of the command just sent. Some Windows serial
// drivers deliver the response before the ACK; such a response is returned
// as early and the command is complete.
func (t *Transport) waitAck(ctx context.Context, cmd byte) (early []byte, err error) {
	deadline := time.Now().Add(t.timeout)
	for {
		f, err := t.nextFrame(ctx, deadline)
		switch {
		case errors.Is(err, errReadTimeout):
			return nil, hce.NewNoACKError("waitAck", t.portName)
		case errors.Is(err, frame.ErrLengthChecksum), errors.Is(err, frame.ErrDataChecksum):
			continue
		case err != nil:
			return nil, err
		}

		switch f.Kind {
		case frame.KindAck:
			return nil, nil
		case frame.KindNack:
			return nil, hce.NewTransportError("waitAck", t.portName, hce.ErrNACKReceived, hce.ErrorTypeTransient)
		case frame.KindError:
			return nil, hce.NewFrameCorruptedError("waitAck", t.portName)
		case frame.KindInformation:
			if f.TFI == frame.Pn532ToHost && len(f.Payload) > 0 && f.Payload[0] == cmd+1 {
				hce.Debugf("UART: response before ACK: %s", hce.FormatHex(f.Payload))
				return f.Payload, nil
			}
		}
	}
}

// receiveResponse reads the response to cmd. Corrupted frames are NACKed
// so the PN532 sends them again. Responses to other commands, left over
// from an aborted exchange, are skipped.
func (t *Transport) receiveResponse(ctx context.Context, cmd byte) ([]byte, error) {
	var deadline time.Time
	if cmd != cmdTgInitAsTarget && cmd != cmdTgGetData {
		deadline = time.Now().Add(t.timeout)
	}

	nacks := 0
	for {
		f, err := t.nextFrame(ctx, deadline)
		switch {
		case errors.Is(err, errReadTimeout):
			return nil, hce.NewTimeoutError("receiveFrame", t.portName)
		case errors.Is(err, frame.ErrLengthChecksum), errors.Is(err, frame.ErrDataChecksum):
			if nacks == maxNACKs {
				return nil, hce.NewChecksumMismatchError("receiveFrame", t.portName)
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
			return nil, hce.NewFrameCorruptedError("receiveFrame", t.portName)
		case frame.KindInformation:
		}
		if f.TFI != frame.Pn532ToHost || len(f.Payload) == 0 {
			return nil, hce.NewTransportError("receiveFrame", t.portName, hce.ErrInvalidResponse, hce.ErrorTypeTransient)
		}
		if f.Payload[0] != cmd+1 {
			hce.Debugf("UART: skipping stale response %s", hce.FormatHex(f.Payload))
			continue
		}
		return f.Payload, nil
	}
}

// Ensure Transport implements hce.Transport
var _ hce.Transport = (*Transport)(nil)

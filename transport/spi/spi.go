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

// Package spi implements hce.Transport over the PN532 SPI interface.
package spi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/internal/frame"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

const (
	// SPI operation bytes, sent first in every transaction
	opDataWrite  = 0x01
	opStatusRead = 0x02
	opDataRead   = 0x03

	// pn532Ready is the status the chip reports once it has a frame for
	// the host.
	pn532Ready = 0x01

	// Default SPI settings. The PN532 shifts LSB first; bytes are
	// bit-reversed in software since most controllers only do MSB first.
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0

	// PathPrefix marks a device path as SPI, e.g. "spi:/dev/spidev0.0".
	PathPrefix = "spi:"

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

// Transport implements the hce.Transport interface for SPI communication
type Transport struct {
	conn     spi.Conn
	port     io.Closer
	trace    *hce.TraceBuffer
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// ParsePath strips the "spi:" prefix from a device path. An empty result
// opens the first SPI port periph knows about.
func ParsePath(path string) string {
	return strings.TrimPrefix(path, PathPrefix)
}

// New opens the named SPI port and returns a transport for the PN532 on it.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(ParsePath(portName))
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}
	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := newWithConn(conn, port, portName)
	t.wakeUp()
	return t, nil
}

func newWithConn(conn spi.Conn, port io.Closer, portName string) *Transport {
	return &Transport{
		conn:     conn,
		port:     port,
		portName: portName,
		timeout:  defaultTimeout,
		trace:    hce.NewTraceBuffer("spi", portName, 16),
	}
}

// wakeUp toggles chip select with a dummy byte; the PN532 needs it after
// power-down before it accepts a frame.
func (t *Transport) wakeUp() {
	time.Sleep(time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, nil)
	time.Sleep(2 * time.Millisecond)
}

// reverseBytes returns a copy of data with every byte bit-reversed
func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = bits.Reverse8(b)
	}
	return out
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

	if t.conn == nil {
		return nil, hce.NewTransportClosedError("SendCommand", t.portName)
	}
	t.trace.Clear()

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, hce.NewDataTooLargeError("sendFrame", t.portName)
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
			hce.Debugf("SPI: aborting command 0x%02X: %v", cmd, ctxErr)
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

// Close releases the SPI port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	t.conn = nil
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Type returns the transport type
func (*Transport) Type() hce.TransportType {
	return hce.TransportSPI
}

func (t *Transport) busError(op string, err error) error {
	if hce.IsFatal(err) {
		return hce.NewTransportError(op, t.portName, err, hce.ErrorTypePermanent)
	}
	return fmt.Errorf("SPI %s failed: %w", op, err)
}

func (t *Transport) write(data []byte, note string) error {
	t.trace.RecordTX(data, note)
	buf := make([]byte, 0, 1+len(data))
	buf = append(buf, opDataWrite)
	buf = append(buf, data...)
	if err := t.conn.Tx(reverseBytes(buf), nil); err != nil {
		return t.busError("write", err)
	}
	return nil
}

// waitReady polls the status register until the chip has a frame for the
// host. A zero deadline never expires.
func (t *Transport) waitReady(ctx context.Context, deadline time.Time) error {
	w := reverseBytes([]byte{opStatusRead, 0x00})
	r := make([]byte, len(w))
	delay := minPoll
	for {
		if err := t.conn.Tx(w, r); err != nil {
			return t.busError("status read", err)
		}
		if bits.Reverse8(r[1]) == pn532Ready {
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

// readFrame clocks out one frame in a single data read transaction
func (t *Transport) readFrame(size int) (frame.Frame, error) {
	w := make([]byte, 1+size)
	w[0] = bits.Reverse8(opDataRead)
	r := make([]byte, len(w))
	if err := t.conn.Tx(w, r); err != nil {
		return frame.Frame{}, t.busError("read", err)
	}
	data := reverseBytes(r[1:])
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
			return hce.NewNoACKError("waitAck", t.portName)
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
			return hce.NewTransportError("waitAck", t.portName, hce.ErrNACKReceived, hce.ErrorTypeTransient)
		case frame.KindError:
			return hce.NewFrameCorruptedError("waitAck", t.portName)
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
			return nil, hce.NewTimeoutError("receiveFrame", t.portName)
		} else if err != nil {
			return nil, err
		}

		f, err := t.readFrame(maxFrameSize)
		switch {
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
			hce.Debugf("SPI: skipping stale response %s", hce.FormatHex(f.Payload))
			continue
		}
		return append([]byte(nil), f.Payload...), nil
	}
}

var _ hce.Transport = (*Transport)(nil)

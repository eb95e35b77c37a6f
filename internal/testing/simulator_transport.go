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

package testing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/internal/frame"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

// SimulatorTransport wraps VirtualPN532 and implements hce.Transport.
// This allows using the wire-level simulator with the Device and target
// loop for integration testing without a serial port.
type SimulatorTransport struct {
	sim        *VirtualPN532
	CommandLog []CommandLogEntry
	rx         []byte
	timeout    time.Duration
	mu         syncutil.Mutex // serialises exchanges
	stateMu    syncutil.Mutex
	connected  bool
}

// CommandLogEntry records a command sent to the transport
type CommandLogEntry struct {
	Timestamp time.Time
	Args      []byte
	Cmd       byte
}

// NewSimulatorTransport creates a new transport backed by VirtualPN532
func NewSimulatorTransport(sim *VirtualPN532) *SimulatorTransport {
	return &SimulatorTransport{
		sim:       sim,
		timeout:   time.Second,
		connected: true,
	}
}

// SendCommandWithContext sends a command to the simulated PN532 and waits
// for its response. Commands waiting for a reader are bounded by ctx only.
func (t *SimulatorTransport) SendCommandWithContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateMu.Lock()
	connected, timeout := t.connected, t.timeout
	if connected {
		t.CommandLog = append(t.CommandLog, CommandLogEntry{
			Cmd:       cmd,
			Args:      append([]byte(nil), args...),
			Timestamp: time.Now(),
		})
	}
	t.stateMu.Unlock()

	if !connected {
		return nil, hce.NewTransportClosedError("SendCommand", "simulator")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, hce.NewDataTooLargeError("SendCommand", "simulator")
	}
	if _, err := t.sim.Write(out); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	ackDeadline := time.Now().Add(timeout)
	for {
		f, err := t.next(ctx, ackDeadline)
		if err != nil {
			return nil, err
		}
		if f.Kind == frame.KindAck {
			break
		}
		// A response to an aborted command can still be in flight.
	}

	var deadline time.Time
	if cmd != cmdTgInitAsTarget && cmd != cmdTgGetData {
		deadline = time.Now().Add(timeout)
	}
	f, err := t.next(ctx, deadline)
	if err != nil {
		if ctx.Err() != nil {
			_, _ = t.sim.Write(frame.AckFrame)
		}
		return nil, err
	}
	if f.Kind == frame.KindError {
		return nil, hce.NewFrameCorruptedError("SendCommand", "simulator")
	}
	return f.Payload, nil
}

// next returns the next frame from the simulator. A zero deadline waits
// until ctx ends.
func (t *SimulatorTransport) next(ctx context.Context, deadline time.Time) (frame.Frame, error) {
	buf := make([]byte, 512)
	for {
		if len(t.rx) > 0 {
			f, n, err := frame.Parse(t.rx)
			if err == nil {
				f.Payload = append([]byte(nil), f.Payload...)
				t.rx = t.rx[n:]
				return f, nil
			}
			if !errors.Is(err, frame.ErrIncomplete) {
				t.rx = nil
				return frame.Frame{}, hce.NewChecksumMismatchError("SendCommand", "simulator")
			}
		}

		n, _ := t.sim.Read(buf)
		if n > 0 {
			t.rx = append(t.rx, buf[:n]...)
			continue
		}

		if err := t.wait(ctx, deadline); err != nil {
			return frame.Frame{}, err
		}
	}
}

func (t *SimulatorTransport) wait(ctx context.Context, deadline time.Time) error {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return hce.NewTimeoutError("SendCommand", "simulator")
	case <-t.sim.Ready():
		return nil
	}
}

// Close closes the transport
func (t *SimulatorTransport) Close() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.connected = false
	return nil
}

// SetTimeout sets the ACK and response timeout
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.timeout = timeout
	return nil
}

// IsConnected returns whether the transport is connected
func (t *SimulatorTransport) IsConnected() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.connected
}

// Type returns the transport type
func (*SimulatorTransport) Type() hce.TransportType {
	return hce.TransportMock
}

// GetSimulator returns the underlying VirtualPN532 for test setup
func (t *SimulatorTransport) GetSimulator() *VirtualPN532 {
	return t.sim
}

// GetCommandCount returns how many times a command was sent
func (t *SimulatorTransport) GetCommandCount(cmd byte) int {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	count := 0
	for _, entry := range t.CommandLog {
		if entry.Cmd == cmd {
			count++
		}
	}
	return count
}

var _ hce.Transport = (*SimulatorTransport)(nil)

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

package uart

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/content"
	simtest "github.com/ZaparooProject/go-hce/internal/testing"
	"github.com/ZaparooProject/go-hce/target"
	"github.com/ZaparooProject/go-hce/type4"
)

// errPortClosed is returned when operations are attempted on a closed port
var errPortClosed = errors.New("port is closed")

// MockSerialPort wraps VirtualPN532 to implement serial.Port. Read blocks
// up to the read timeout like a real port.
type MockSerialPort struct {
	sim         *simtest.VirtualPN532
	readTimeout time.Duration
	closed      bool
}

// NewMockSerialPort creates a mock serial port backed by the wire simulator
func NewMockSerialPort(sim *simtest.VirtualPN532) *MockSerialPort {
	return &MockSerialPort{
		sim:         sim,
		readTimeout: 100 * time.Millisecond,
	}
}

func (*MockSerialPort) SetMode(_ *serial.Mode) error {
	return nil
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	if m.closed {
		return 0, errPortClosed
	}
	if n, _ := m.sim.Read(p); n > 0 {
		return n, nil
	}
	select {
	case <-m.sim.Ready():
	case <-time.After(m.readTimeout):
	}
	n, _ := m.sim.Read(p)
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errPortClosed
	}
	return m.sim.Write(p)
}

func (*MockSerialPort) Drain() error {
	return nil
}

func (*MockSerialPort) ResetInputBuffer() error {
	return nil
}

func (*MockSerialPort) ResetOutputBuffer() error {
	return nil
}

func (*MockSerialPort) SetDTR(_ bool) error {
	return nil
}

func (*MockSerialPort) SetRTS(_ bool) error {
	return nil
}

func (*MockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.readTimeout = t
	return nil
}

func (m *MockSerialPort) Close() error {
	m.closed = true
	return nil
}

func (*MockSerialPort) Break(_ time.Duration) error {
	return nil
}

// Verify interface implementation
var _ serial.Port = (*MockSerialPort)(nil)

func newTestTransport(t *testing.T) (*Transport, *simtest.VirtualPN532) {
	t.Helper()
	sim := simtest.NewVirtualPN532()
	tr, err := newWithPort(NewMockSerialPort(sim), "mock")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, sim
}

func TestUARTDeviceInit(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	device, err := hce.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	assert.Equal(t, "1.6", device.FirmwareVersion().Version)
	assert.True(t, sim.GetState().SAMConfigured)
	assert.Equal(t, hce.TransportUART, tr.Type())
	assert.True(t, tr.IsConnected())
}

func TestUARTRecoversCorruptedResponse(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	sim.CorruptNextResponses(1)

	res, err := tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, res)
	assert.Equal(t, []byte{0x02}, sim.Commands(), "a NACK must not resend the command")
}

func TestUARTResponseBeforeACK(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	sim.DropNextACK()

	res, err := tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), res[0])

	// The exchange after the quirk still works.
	res, err = tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), res[0])
}

func TestUARTErrorFrame(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(t)
	_, err := tr.SendCommandWithContext(context.Background(), 0x4A, []byte{0x01, 0x00})
	require.Error(t, err)
	require.ErrorIs(t, err, hce.ErrFrameCorrupted)

	var traced *hce.TraceableError
	require.ErrorAs(t, err, &traced)
	assert.NotEmpty(t, traced.Trace)
}

func TestUARTCommandTooLarge(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	_, err := tr.SendCommandWithContext(context.Background(), 0x8E, make([]byte, 300))
	require.ErrorIs(t, err, hce.ErrDataTooLarge)
	assert.Empty(t, sim.Commands())
}

func TestUARTCancelAbortsTargetInit(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	device, err := hce.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = device.InitAsTarget(ctx, hce.DefaultTargetConfig())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, sim.Armed(), "abort ACK must take the chip out of target mode")

	// The link is clean for the next command.
	_, err = tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.NoError(t, err)
}

func TestUARTCancelledContext(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.SendCommandWithContext(ctx, 0x02, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sim.Commands())
}

func TestUARTClosed(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())

	_, err := tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, hce.ErrTransportClosed)
	assert.True(t, hce.IsFatal(err))
}

func TestUARTSetTimeout(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(t)
	require.NoError(t, tr.SetTimeout(250*time.Millisecond))
	require.ErrorIs(t, tr.SetTimeout(0), hce.ErrInvalidParameter)
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "eintr", err: errors.New("read /dev/ttyUSB0: interrupted system call"), want: true},
		{name: "errno name", err: errors.New("EINTR"), want: true},
		{name: "other", err: errors.New("input/output error"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isInterruptedSystemCall(tt.err))
		})
	}
}

func TestUARTServesTagEndToEnd(t *testing.T) {
	t.Parallel()

	tr, sim := newTestTransport(t)
	device, err := hce.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	// Long enough that READ BINARY responses need extended frames.
	c := content.URL("https://example.com/?q=" + strings.Repeat("0123456789abcdef", 20))
	store := content.NewStore()
	store.Set(c)
	cfg := target.DefaultConfig()
	cfg.IdleTimeout = 0
	loop := target.New(device, hce.NewEmulator(hce.WithStore(store)), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	tapCtx, tapCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tapCancel()
	require.NoError(t, sim.WaitArmed(tapCtx))

	var msg []byte
	err = sim.Present(tapCtx, func(tx simtest.Transceive) error {
		reader := simtest.NewVirtualReader(tx)
		reader.MaxRead = 0xFF
		var rerr error
		msg, rerr = reader.ReadNDEF(tapCtx)
		return rerr
	})
	require.NoError(t, err)
	assert.Equal(t, type4.BuildFile(c).Bytes[2:], msg)
}

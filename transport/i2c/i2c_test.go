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

package i2c

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/content"
	simtest "github.com/ZaparooProject/go-hce/internal/testing"
	"github.com/ZaparooProject/go-hce/target"
	"github.com/ZaparooProject/go-hce/type4"
)

var errBusClosed = errors.New("bus closed")

// MockI2CBus implements i2c.BusCloser backed by VirtualPN532. Reads carry
// the ready status byte in front of the chip's output, as on hardware.
type MockI2CBus struct {
	sim    *simtest.VirtualPN532
	addrs  []uint16
	closed bool
}

// NewMockI2CBus creates a new mock I2C bus wrapping the VirtualPN532 simulator.
func NewMockI2CBus(sim *simtest.VirtualPN532) *MockI2CBus {
	return &MockI2CBus{sim: sim}
}

// Tx implements i2c.Bus.Tx.
func (m *MockI2CBus) Tx(addr uint16, w, r []byte) error {
	if m.closed {
		return errBusClosed
	}
	m.addrs = append(m.addrs, addr)

	if len(w) > 0 {
		if _, err := m.sim.Write(w); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		return nil
	}

	clear(r)
	if !m.sim.HasPendingResponse() {
		return nil
	}
	r[0] = pn532Ready
	if len(r) > 1 {
		_, _ = m.sim.Read(r[1:])
	}
	return nil
}

// SetSpeed implements i2c.Bus (no-op for mock).
func (*MockI2CBus) SetSpeed(_ physic.Frequency) error {
	return nil
}

// Close closes the mock bus.
func (m *MockI2CBus) Close() error {
	m.closed = true
	return nil
}

// String returns the bus name.
func (*MockI2CBus) String() string {
	return "mock://i2c"
}

var _ i2c.BusCloser = (*MockI2CBus)(nil)

func newTestTransport(t *testing.T) (*Transport, *simtest.VirtualPN532, *MockI2CBus) {
	t.Helper()
	sim := simtest.NewVirtualPN532()
	bus := NewMockI2CBus(sim)
	tr := newWithBus(bus, "mock://i2c")
	t.Cleanup(func() { _ = tr.Close() })
	return tr, sim, bus
}

func TestI2CDeviceInit(t *testing.T) {
	t.Parallel()

	tr, sim, bus := newTestTransport(t)
	device, err := hce.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	assert.Equal(t, "1.6", device.FirmwareVersion().Version)
	assert.True(t, sim.GetState().SAMConfigured)
	assert.Equal(t, hce.TransportI2C, tr.Type())
	for _, addr := range bus.addrs {
		assert.Equal(t, uint16(0x24), addr)
	}
}

func TestI2CRecoversCorruptedResponse(t *testing.T) {
	t.Parallel()

	tr, sim, _ := newTestTransport(t)
	sim.CorruptNextResponses(1)

	res, err := tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, res)
	assert.Equal(t, []byte{0x02}, sim.Commands())
}

func TestI2CErrorFrame(t *testing.T) {
	t.Parallel()

	tr, _, _ := newTestTransport(t)
	_, err := tr.SendCommandWithContext(context.Background(), 0x4A, []byte{0x01, 0x00})
	require.ErrorIs(t, err, hce.ErrFrameCorrupted)
}

func TestI2CCommandTooLarge(t *testing.T) {
	t.Parallel()

	tr, sim, _ := newTestTransport(t)
	_, err := tr.SendCommandWithContext(context.Background(), 0x8E, make([]byte, 300))
	require.ErrorIs(t, err, hce.ErrDataTooLarge)
	assert.Empty(t, sim.Commands())
}

func TestI2CCancelAbortsTargetInit(t *testing.T) {
	t.Parallel()

	tr, sim, _ := newTestTransport(t)
	device, err := hce.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = device.InitAsTarget(ctx, hce.DefaultTargetConfig())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, sim.Armed())
}

func TestI2CCancelledContext(t *testing.T) {
	t.Parallel()

	tr, sim, _ := newTestTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.SendCommandWithContext(ctx, 0x02, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sim.Commands())
}

func TestI2CClosed(t *testing.T) {
	t.Parallel()

	tr, _, bus := newTestTransport(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, bus.closed)
	assert.False(t, tr.IsConnected())

	_, err := tr.SendCommandWithContext(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, hce.ErrTransportClosed)
}

func TestI2CSetTimeout(t *testing.T) {
	t.Parallel()

	tr, _, _ := newTestTransport(t)
	require.NoError(t, tr.SetTimeout(time.Second))
	require.ErrorIs(t, tr.SetTimeout(-time.Second), hce.ErrInvalidParameter)
}

func TestParseI2CPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{path: "/dev/i2c-1", want: "/dev/i2c-1"},
		{path: "/dev/i2c-1:0x24", want: "/dev/i2c-1"},
		{path: "1", want: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseI2CPath(tt.path))
		})
	}
}

func TestI2CServesTagEndToEnd(t *testing.T) {
	t.Parallel()

	tr, sim, _ := newTestTransport(t)
	device, err := hce.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	c := content.URL("https://example.com/" + strings.Repeat("x", 300))
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
		var rerr error
		msg, rerr = simtest.NewVirtualReader(tx).ReadNDEF(tapCtx)
		return rerr
	})
	require.NoError(t, err)
	assert.Equal(t, type4.BuildFile(c).Bytes[2:], msg)
}

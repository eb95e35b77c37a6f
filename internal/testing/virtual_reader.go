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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-hce/apdu"
)

// ErrNotNDEFTag is returned when the card does not pass NDEF detection.
var ErrNotNDEFTag = errors.New("card is not an NDEF Type 4 Tag")

// CapabilityContainer is the decoded CC file of a Type 4 Tag.
type CapabilityContainer struct {
	Length      int
	Mapping     byte
	MaxRead     int
	MaxWrite    int
	FileID      uint16
	MaxFileSize int
	ReadAccess  byte
	WriteAccess byte
}

// VirtualReader plays the NFC Forum Type 4 Tag NDEF detection and read
// procedures against a card, the way a phone does when a tag is tapped.
type VirtualReader struct {
	tx Transceive
	// MaxRead caps each READ BINARY below the card's MLe, like readers
	// with small buffers do. Zero uses MLe.
	MaxRead int
}

// NewVirtualReader creates a reader that talks to a card through tx.
func NewVirtualReader(tx Transceive) *VirtualReader {
	return &VirtualReader{tx: tx}
}

// HandlerTransceive adapts a synchronous APDU handler, such as an
// Emulator's ProcessCommand, to a Transceive.
func HandlerTransceive(handler func([]byte) []byte) Transceive {
	return func(_ context.Context, cmd []byte) ([]byte, error) {
		return handler(cmd), nil
	}
}

func (r *VirtualReader) send(ctx context.Context, cmd []byte) ([]byte, apdu.StatusWord, error) {
	resp, err := r.tx(ctx, cmd)
	if err != nil {
		return nil, 0, err
	}
	data, sw, err := apdu.SplitResponse(resp)
	if err != nil {
		return nil, 0, fmt.Errorf("card answered %X: %w", resp, err)
	}
	return data, sw, nil
}

func (r *VirtualReader) expectSuccess(ctx context.Context, step string, cmd []byte) ([]byte, error) {
	data, sw, err := r.send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !sw.IsSuccess() {
		return nil, fmt.Errorf("%w: %s answered %s", ErrNotNDEFTag, step, sw)
	}
	return data, nil
}

// Detect runs NDEF detection: selects the NDEF application and reads the
// Capability Container.
func (r *VirtualReader) Detect(ctx context.Context) (*CapabilityContainer, error) {
	if _, err := r.expectSuccess(ctx, "SELECT NDEF application", apdu.SelectApplication(apdu.NdefApplicationID)); err != nil {
		return nil, err
	}
	if _, err := r.expectSuccess(ctx, "SELECT CC", apdu.SelectFile(apdu.FileIDCapabilityContainer)); err != nil {
		return nil, err
	}
	raw, err := r.expectSuccess(ctx, "READ BINARY CC", apdu.ReadBinaryCommand(0, 15))
	if err != nil {
		return nil, err
	}
	return ParseCapabilityContainer(raw)
}

// ParseCapabilityContainer decodes a 15-byte CC file.
func ParseCapabilityContainer(raw []byte) (*CapabilityContainer, error) {
	if len(raw) < 15 {
		return nil, fmt.Errorf("%w: CC has %d bytes", ErrNotNDEFTag, len(raw))
	}
	if raw[7] != 0x04 || raw[8] != 0x06 {
		return nil, fmt.Errorf("%w: no NDEF file control TLV", ErrNotNDEFTag)
	}
	return &CapabilityContainer{
		Length:      int(binary.BigEndian.Uint16(raw[0:])),
		Mapping:     raw[2],
		MaxRead:     int(binary.BigEndian.Uint16(raw[3:])),
		MaxWrite:    int(binary.BigEndian.Uint16(raw[5:])),
		FileID:      binary.BigEndian.Uint16(raw[9:]),
		MaxFileSize: int(binary.BigEndian.Uint16(raw[11:])),
		ReadAccess:  raw[13],
		WriteAccess: raw[14],
	}, nil
}

// ReadNDEF runs detection, then reads the NDEF file in chunks and returns
// the NDEF message (without its NLEN prefix). An empty tag gives an empty
// message.
func (r *VirtualReader) ReadNDEF(ctx context.Context) ([]byte, error) {
	cc, err := r.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if cc.ReadAccess != 0x00 {
		return nil, fmt.Errorf("%w: read access 0x%02X", ErrNotNDEFTag, cc.ReadAccess)
	}
	if _, err := r.expectSuccess(ctx, "SELECT NDEF file", apdu.SelectFile(cc.FileID)); err != nil {
		return nil, err
	}

	nlenRaw, err := r.expectSuccess(ctx, "READ BINARY NLEN", apdu.ReadBinaryCommand(0, 2))
	if err != nil {
		return nil, err
	}
	if len(nlenRaw) != 2 {
		return nil, fmt.Errorf("%w: NLEN read returned %d bytes", ErrNotNDEFTag, len(nlenRaw))
	}
	nlen := int(binary.BigEndian.Uint16(nlenRaw))
	if nlen > cc.MaxFileSize-2 {
		return nil, fmt.Errorf("%w: NLEN %d exceeds file size %d", ErrNotNDEFTag, nlen, cc.MaxFileSize)
	}

	chunk := cc.MaxRead
	if r.MaxRead > 0 && r.MaxRead < chunk {
		chunk = r.MaxRead
	}
	if chunk <= 0 {
		return nil, fmt.Errorf("%w: MLe is zero", ErrNotNDEFTag)
	}

	msg := make([]byte, 0, nlen)
	for len(msg) < nlen {
		n := min(chunk, nlen-len(msg))
		data, err := r.expectSuccess(ctx, "READ BINARY", apdu.ReadBinaryCommand(2+len(msg), n))
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty read at offset %d", ErrNotNDEFTag, 2+len(msg))
		}
		msg = append(msg, data...)
	}
	return msg[:nlen], nil
}

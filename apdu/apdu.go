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

// Package apdu parses ISO/IEC 7816-4 command APDUs and classifies the subset
// spoken by NFC Forum Type 4 Tag readers.
package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Parsing errors.
var (
	ErrTooShort  = errors.New("apdu: command shorter than 4 bytes")
	ErrMalformed = errors.New("apdu: malformed length fields")
)

const (
	headerLen      = 4
	shortMaxNe     = 256
	extendedMaxNe  = 65536
	extendedMarker = 0x00
)

// Command is a decoded command APDU.
type Command struct {
	Data     []byte
	Ne       int // Expected response length; 0 when no Le field is present
	CLA      byte
	INS      byte
	P1       byte
	P2       byte
	HasLe    bool
	Extended bool
}

// Parse decodes a command APDU in any of the short or extended cases.
// Le bytes of zero decode to the maximum: 256 for short and 65536 for
// extended commands.
func Parse(raw []byte) (Command, error) {
	if len(raw) < headerLen {
		return Command{}, ErrTooShort
	}
	cmd := Command{CLA: raw[0], INS: raw[1], P1: raw[2], P2: raw[3]}
	body := raw[headerLen:]

	switch {
	case len(body) == 0:
		// Case 1
		return cmd, nil
	case len(body) == 1:
		// Case 2S
		cmd.HasLe = true
		cmd.Ne = decodeShortLe(body[0])
		return cmd, nil
	case body[0] != extendedMarker:
		return parseShort(cmd, body)
	default:
		return parseExtended(cmd, body)
	}
}

func parseShort(cmd Command, body []byte) (Command, error) {
	lc := int(body[0])
	switch len(body) {
	case 1 + lc:
		// Case 3S
		cmd.Data = body[1:]
		return cmd, nil
	case 2 + lc:
		// Case 4S
		cmd.Data = body[1 : 1+lc]
		cmd.HasLe = true
		cmd.Ne = decodeShortLe(body[1+lc])
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: Lc=%d but %d body bytes", ErrMalformed, lc, len(body))
	}
}

func parseExtended(cmd Command, body []byte) (Command, error) {
	cmd.Extended = true
	if len(body) == 3 {
		// Case 2E
		cmd.HasLe = true
		cmd.Ne = decodeExtendedLe(body[1:3])
		return cmd, nil
	}
	if len(body) < 3 {
		return Command{}, fmt.Errorf("%w: truncated extended length", ErrMalformed)
	}
	lc := int(binary.BigEndian.Uint16(body[1:3]))
	if lc == 0 {
		return Command{}, fmt.Errorf("%w: extended Lc of zero", ErrMalformed)
	}
	switch len(body) {
	case 3 + lc:
		// Case 3E
		cmd.Data = body[3:]
		return cmd, nil
	case 5 + lc:
		// Case 4E
		cmd.Data = body[3 : 3+lc]
		cmd.HasLe = true
		cmd.Ne = decodeExtendedLe(body[3+lc:])
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: extended Lc=%d but %d body bytes", ErrMalformed, lc, len(body))
	}
}

func decodeShortLe(le byte) int {
	if le == 0 {
		return shortMaxNe
	}
	return int(le)
}

func decodeExtendedLe(le []byte) int {
	n := int(binary.BigEndian.Uint16(le))
	if n == 0 {
		return extendedMaxNe
	}
	return n
}

// Bytes encodes the command back to its wire form using the short encoding
// when possible.
func (c Command) Bytes() []byte {
	out := []byte{c.CLA, c.INS, c.P1, c.P2}
	extended := c.Extended || len(c.Data) > 255 || c.Ne > shortMaxNe
	if len(c.Data) > 0 {
		if extended {
			out = append(out, extendedMarker)
			out = binary.BigEndian.AppendUint16(out, uint16(len(c.Data))) //nolint:gosec // bounded by caller
		} else {
			out = append(out, byte(len(c.Data)))
		}
		out = append(out, c.Data...)
	}
	if c.HasLe {
		switch {
		case extended && len(c.Data) == 0:
			out = append(out, extendedMarker)
			out = binary.BigEndian.AppendUint16(out, uint16(c.Ne%extendedMaxNe)) //nolint:gosec // modulo bounds it
		case extended:
			out = binary.BigEndian.AppendUint16(out, uint16(c.Ne%extendedMaxNe)) //nolint:gosec // modulo bounds it
		default:
			out = append(out, byte(c.Ne%shortMaxNe))
		}
	}
	return out
}

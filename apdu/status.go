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

package apdu

import "fmt"

// StatusWord is the two-byte trailer (SW1-SW2) that closes every response APDU.
type StatusWord uint16

// Status words answered by an emulated Type 4 Tag.
const (
	SWSuccess         StatusWord = 0x9000 // Command completed
	SWError           StatusWord = 0x6F00 // No precise diagnosis
	SWNotFound        StatusWord = 0x6A82 // File or application not found
	SWWrongParameters StatusWord = 0x6B00 // Wrong parameters P1-P2 (offset outside the file)

	sw1WrongLength byte = 0x6C
)

// NewStatusWord creates a StatusWord from its two bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// WrongLength returns the 6CXX status word telling the reader how many bytes
// are actually available. Counts of 256 or more are encoded as 00.
func WrongLength(available int) StatusWord {
	if available < 0 {
		available = 0
	}
	var sw2 byte
	if available < 256 {
		sw2 = byte(available)
	}
	return NewStatusWord(sw1WrongLength, sw2)
}

// SW1 returns the high byte of the status word.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the low byte of the status word.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// Bytes returns the status word in wire order.
func (sw StatusWord) Bytes() []byte {
	return []byte{sw.SW1(), sw.SW2()}
}

// IsSuccess reports whether the status word is 90 00.
func (sw StatusWord) IsSuccess() bool {
	return sw == SWSuccess
}

// AvailableLength decodes a 6CXX status word. The second result is false for
// any other status word.
func (sw StatusWord) AvailableLength() (int, bool) {
	if sw.SW1() != sw1WrongLength {
		return 0, false
	}
	if sw.SW2() == 0 {
		return 256, true
	}
	return int(sw.SW2()), true
}

// String renders the status word as hex followed by its meaning.
func (sw StatusWord) String() string {
	var meaning string
	switch {
	case sw == SWSuccess:
		meaning = "success"
	case sw == SWError:
		meaning = "error"
	case sw == SWNotFound:
		meaning = "file not found"
	case sw == SWWrongParameters:
		meaning = "wrong parameters"
	case sw.SW1() == sw1WrongLength:
		n, _ := sw.AvailableLength()
		meaning = fmt.Sprintf("wrong length, %d available", n)
	default:
		meaning = "unknown"
	}
	return fmt.Sprintf("%02X %02X (%s)", sw.SW1(), sw.SW2(), meaning)
}

// Respond builds a response APDU: the data followed by the status word.
func Respond(data []byte, sw StatusWord) []byte {
	resp := make([]byte, 0, len(data)+2)
	resp = append(resp, data...)
	return append(resp, sw.SW1(), sw.SW2())
}

// SplitResponse separates a response APDU into data and status word.
func SplitResponse(resp []byte) ([]byte, StatusWord, error) {
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("%w: response has %d bytes", ErrMalformed, len(resp))
	}
	n := len(resp) - 2
	return resp[:n], NewStatusWord(resp[n], resp[n+1]), nil
}

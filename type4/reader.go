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

package type4

import "github.com/ZaparooProject/go-hce/apdu"

// LengthPolicy decides how a READ BINARY asking for more bytes than remain
// in the file is answered.
type LengthPolicy int

const (
	// ClampLength returns the remaining bytes with 90 00.
	ClampLength LengthPolicy = iota
	// EchoWrongLength returns no data and 6C XX, XX being the number of
	// bytes remaining.
	EchoWrongLength
)

func (p LengthPolicy) String() string {
	if p == EchoWrongLength {
		return "echo"
	}
	return "clamp"
}

// ReadBinary serves length bytes at offset from buf using ClampLength.
func ReadBinary(buf []byte, offset, length int) ([]byte, apdu.StatusWord) {
	return ReadBinaryWithPolicy(buf, offset, length, ClampLength)
}

// ReadBinaryWithPolicy serves length bytes at offset from buf. An offset
// outside the buffer answers 6B 00; an offset exactly at its end answers an
// empty 90 00. The returned slice never aliases buf.
func ReadBinaryWithPolicy(buf []byte, offset, length int, policy LengthPolicy) ([]byte, apdu.StatusWord) {
	if offset < 0 || offset > len(buf) {
		return nil, apdu.SWWrongParameters
	}
	available := len(buf) - offset
	if available == 0 || length <= 0 {
		return nil, apdu.SWSuccess
	}
	if length > available && policy == EchoWrongLength {
		return nil, apdu.WrongLength(available)
	}

	n := min(length, available)
	out := make([]byte, n)
	copy(out, buf[offset:offset+n])
	return out, apdu.SWSuccess
}

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

import "bytes"

// Instruction and class bytes recognized by the classifier.
const (
	ClassISO          byte = 0x00
	InsSelect         byte = 0xA4
	InsReadBinary     byte = 0xB0
	InsReadRecord     byte = 0xB2
	SelectByName      byte = 0x04
	SelectByFileID    byte = 0x00
	SelectFirstOrOnly byte = 0x0C // P2: first or only occurrence, no FCI returned
)

// Type 4 Tag identifiers.
const (
	FileIDCapabilityContainer uint16 = 0xE103
	FileIDNdef                uint16 = 0xE104
)

// NdefApplicationID is the NFC Forum NDEF Tag Application AID (mapping version 2.0).
var NdefApplicationID = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}

// Kind is the recognized meaning of a command APDU.
type Kind int

const (
	Unrecognized Kind = iota
	SelectNdefApplication
	SelectCapabilityContainer
	SelectNdefFile
	ReadBinary
	ReadRecord
)

func (k Kind) String() string {
	switch k {
	case SelectNdefApplication:
		return "SELECT NDEF application"
	case SelectCapabilityContainer:
		return "SELECT CC file"
	case SelectNdefFile:
		return "SELECT NDEF file"
	case ReadBinary:
		return "READ BINARY"
	case ReadRecord:
		return "READ RECORD"
	default:
		return "unrecognized"
	}
}

// IsSelect reports whether the kind is one of the SELECT variants.
func (k Kind) IsSelect() bool {
	return k == SelectNdefApplication || k == SelectCapabilityContainer || k == SelectNdefFile
}

// Classified is the result of Classify.
type Classified struct {
	Kind Kind
	// Offset is the 15-bit byte offset of a READ BINARY.
	Offset int
	// Length is the number of bytes a READ BINARY asks for. A short Le of
	// 00 (or no Le at all) asks for 256 bytes.
	Length int
	// Record is P1 of a READ RECORD. It is a record number, not an offset.
	Record byte
	// ReservedBit is set when a READ BINARY carries the high bit of P1,
	// which would select short EF addressing.
	ReservedBit bool
}

// Classify recognizes the commands a Type 4 Tag reader sends. It never
// panics; anything it cannot recognize, including nil and inputs shorter
// than four bytes, is Unrecognized.
func Classify(raw []byte) Classified {
	cmd, err := Parse(raw)
	if err != nil || cmd.CLA != ClassISO {
		return Classified{Kind: Unrecognized}
	}

	switch cmd.INS {
	case InsSelect:
		return Classified{Kind: classifySelect(cmd)}
	case InsReadBinary:
		length := cmd.Ne
		if !cmd.HasLe {
			length = shortMaxNe
		}
		return Classified{
			Kind:        ReadBinary,
			Offset:      int(cmd.P1&0x7F)<<8 | int(cmd.P2),
			Length:      length,
			ReservedBit: cmd.P1&0x80 != 0,
		}
	case InsReadRecord:
		return Classified{Kind: ReadRecord, Record: cmd.P1, Length: cmd.Ne}
	default:
		return Classified{Kind: Unrecognized}
	}
}

func classifySelect(cmd Command) Kind {
	switch cmd.P1 {
	case SelectByName:
		if bytes.Equal(cmd.Data, NdefApplicationID) {
			return SelectNdefApplication
		}
	case SelectByFileID:
		if len(cmd.Data) != 2 {
			return Unrecognized
		}
		switch uint16(cmd.Data[0])<<8 | uint16(cmd.Data[1]) {
		case FileIDCapabilityContainer:
			return SelectCapabilityContainer
		case FileIDNdef:
			return SelectNdefFile
		}
	}
	return Unrecognized
}

// SelectApplication builds a SELECT by name command for the given AID.
func SelectApplication(aid []byte) []byte {
	return Command{
		CLA: ClassISO, INS: InsSelect, P1: SelectByName, P2: 0x00,
		Data: aid, HasLe: true, Ne: shortMaxNe,
	}.Bytes()
}

// SelectFile builds a SELECT by file identifier command.
func SelectFile(id uint16) []byte {
	return Command{
		CLA: ClassISO, INS: InsSelect, P1: SelectByFileID, P2: SelectFirstOrOnly,
		Data: []byte{byte(id >> 8), byte(id)},
	}.Bytes()
}

// ReadBinaryCommand builds a short READ BINARY command. A length of 256
// is encoded as Le=00.
func ReadBinaryCommand(offset, length int) []byte {
	return Command{
		CLA: ClassISO, INS: InsReadBinary,
		P1: byte(offset>>8) & 0x7F, P2: byte(offset),
		HasLe: true, Ne: length,
	}.Bytes()
}

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

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ZaparooProject/go-hce/content"
	"github.com/ZaparooProject/go-hce/pkg/ndef"
)

// Content encoding errors. None of them reach the reader: the file
// degrades to the empty NDEF file instead.
var (
	ErrNoContent       = errors.New("type4: no content configured")
	ErrInvalidText     = errors.New("type4: content is not valid UTF-8")
	ErrMessageTooLarge = errors.New("type4: NDEF message does not fit the NDEF file")
)

// File is a built NDEF file.
type File struct {
	// Err explains why the file is empty. Nil when content was encoded.
	Err error
	// Bytes is NLEN followed by the message. Never nil: empty content
	// gives the two-byte file 00 00.
	Bytes []byte
	// MessageLength is the value of the NLEN prefix.
	MessageLength int
	// Records is the number of records in the message.
	Records int
	// Oversize is set when the message exceeds SoftMessageLimit. It never
	// changes Bytes.
	Oversize bool
}

// EmptyFile returns the NDEF file of a tag without a message.
func EmptyFile() []byte {
	return []byte{0x00, 0x00}
}

// BuildMessage encodes content as an NDEF message. URLs become well-known
// URI records, a vCard becomes one text/x-vcard media record.
func BuildMessage(c content.Content) (*ndef.Message, error) {
	switch c.Kind() {
	case content.KindURL:
		msg := &ndef.Message{}
		for _, u := range c.URLs() {
			if u == "" {
				continue
			}
			if !utf8.ValidString(u) {
				return nil, fmt.Errorf("%w: url %q", ErrInvalidText, u)
			}
			msg.Records = append(msg.Records, ndef.NewURIRecord(u))
		}
		if len(msg.Records) == 0 {
			return nil, ErrNoContent
		}
		return msg, nil
	case content.KindVCard:
		text := c.VCardText()
		if text == "" {
			return nil, ErrNoContent
		}
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("%w: vcard", ErrInvalidText)
		}
		return ndef.NewMessage(ndef.NewVCardRecord(text)), nil
	case content.KindNone:
		return nil, ErrNoContent
	default:
		return nil, ErrNoContent
	}
}

// BuildFile encodes content as an NDEF file. It is deterministic and never
// fails: anything that cannot be encoded yields the empty file with Err set.
func BuildFile(c content.Content) File {
	msg, err := BuildMessage(c)
	if err != nil {
		return File{Bytes: EmptyFile(), Err: err}
	}
	data, err := msg.Marshal()
	if err != nil {
		return File{Bytes: EmptyFile(), Err: fmt.Errorf("encode NDEF message: %w", err)}
	}
	if len(data) > MaxMessageLength {
		return File{
			Bytes: EmptyFile(),
			Err:   fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(data), MaxMessageLength),
		}
	}

	file := make([]byte, nlenSize, nlenSize+len(data))
	binary.BigEndian.PutUint16(file, uint16(len(data))) //nolint:gosec // bounded by MaxMessageLength
	file = append(file, data...)

	return File{
		Bytes:         file,
		MessageLength: len(data),
		Records:       len(msg.Records),
		Oversize:      len(data) > SoftMessageLimit,
	}
}

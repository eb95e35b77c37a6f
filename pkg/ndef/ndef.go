// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ndef encodes and decodes NFC Data Exchange Format messages.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TNF (Type Name Format) values as defined by NFC Forum.
const (
	TNFEmpty       byte = 0x00 // Empty record
	TNFWellKnown   byte = 0x01 // NFC Forum well-known type
	TNFMedia       byte = 0x02 // Media-type (RFC 2046)
	TNFAbsoluteURI byte = 0x03 // Absolute URI (RFC 3986)
	TNFExternal    byte = 0x04 // NFC Forum external type
	TNFUnknown     byte = 0x05 // Unknown
	TNFUnchanged   byte = 0x06 // Unchanged (for chunked records)
	TNFReserved    byte = 0x07 // Reserved
)

// Record header flags.
const (
	flagMB  byte = 0x80 // Message begin
	flagME  byte = 0x40 // Message end
	flagCF  byte = 0x20 // Chunk
	flagSR  byte = 0x10 // Short record
	flagIL  byte = 0x08 // ID length present
	tnfMask byte = 0x07

	shortRecordMaxLen = 255
	maxFieldLen       = 255
)

// Common errors.
var (
	ErrEmptyMessage    = errors.New("ndef: empty message")
	ErrTruncatedRecord = errors.New("ndef: truncated record data")
	ErrInvalidTNF      = errors.New("ndef: invalid TNF value")
	ErrChunkedRecord   = errors.New("ndef: chunked records not supported")
	ErrFieldTooLong    = errors.New("ndef: type or ID longer than 255 bytes")
)

// Record is a single NDEF record. The MB and ME flags are not part of the
// record: they follow from its position in a Message.
type Record struct {
	Type    string
	ID      string
	Payload []byte
	TNF     byte
}

// Message is an ordered, non-empty sequence of records.
type Message struct {
	Records []*Record
}

// NewMessage creates a message from records.
func NewMessage(records ...*Record) *Message {
	return &Message{Records: records}
}

// Marshal serializes the message, flagging the first record with MB and the
// last with ME.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Records) == 0 {
		return nil, ErrEmptyMessage
	}

	out := make([]byte, 0, m.encodedLen())
	for i, rec := range m.Records {
		var err error
		out, err = rec.appendTo(out, i == 0, i == len(m.Records)-1)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}

func (m *Message) encodedLen() int {
	n := 0
	for _, rec := range m.Records {
		n += rec.EncodedLen()
	}
	return n
}

// Unmarshal parses a message and returns the number of bytes consumed.
// Parsing stops after the record carrying the ME flag.
func (m *Message) Unmarshal(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyMessage
	}

	m.Records = nil
	offset := 0
	for offset < len(data) {
		rec := &Record{}
		n, last, err := rec.decode(data[offset:])
		if err != nil {
			return offset, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		m.Records = append(m.Records, rec)
		offset += n
		if last {
			break
		}
	}
	return offset, nil
}

// EncodedLen returns the number of bytes the record occupies on the wire.
func (r *Record) EncodedLen() int {
	n := 2 + len(r.Type) + len(r.ID) + len(r.Payload)
	if len(r.Payload) <= shortRecordMaxLen {
		n++
	} else {
		n += 4
	}
	if r.ID != "" {
		n++
	}
	return n
}

// Marshal serializes the record as a message of its own (MB and ME set).
func (r *Record) Marshal() ([]byte, error) {
	return r.appendTo(make([]byte, 0, r.EncodedLen()), true, true)
}

func (r *Record) appendTo(out []byte, first, last bool) ([]byte, error) {
	if r.TNF > TNFReserved {
		return nil, ErrInvalidTNF
	}
	if len(r.Type) > maxFieldLen || len(r.ID) > maxFieldLen {
		return nil, ErrFieldTooLong
	}

	flags := r.TNF & tnfMask
	if first {
		flags |= flagMB
	}
	if last {
		flags |= flagME
	}
	short := len(r.Payload) <= shortRecordMaxLen
	if short {
		flags |= flagSR
	}
	if r.ID != "" {
		flags |= flagIL
	}

	out = append(out, flags, byte(len(r.Type)))
	if short {
		out = append(out, byte(len(r.Payload)))
	} else {
		//nolint:gosec // payload length is non-negative and far below 4 GiB
		out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
	}
	if r.ID != "" {
		out = append(out, byte(len(r.ID)))
	}
	out = append(out, r.Type...)
	out = append(out, r.ID...)
	return append(out, r.Payload...), nil
}

// decode parses one record and reports the bytes consumed and whether the
// record closes its message.
func (r *Record) decode(data []byte) (n int, last bool, err error) {
	if len(data) < 3 {
		return 0, false, ErrTruncatedRecord
	}

	flags := data[0]
	if flags&flagCF != 0 {
		return 0, false, ErrChunkedRecord
	}
	r.TNF = flags & tnfMask
	if r.TNF > TNFUnchanged {
		return 0, false, ErrInvalidTNF
	}

	typeLen := int(data[1])
	offset := 2

	var payloadLen int
	if flags&flagSR != 0 {
		payloadLen = int(data[offset])
		offset++
	} else {
		if offset+4 > len(data) {
			return 0, false, ErrTruncatedRecord
		}
		payloadLen = int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	var idLen int
	if flags&flagIL != 0 {
		if offset >= len(data) {
			return 0, false, ErrTruncatedRecord
		}
		idLen = int(data[offset])
		offset++
	}

	if payloadLen < 0 || offset+typeLen+idLen+payloadLen > len(data) {
		return 0, false, ErrTruncatedRecord
	}

	r.Type = string(data[offset : offset+typeLen])
	offset += typeLen
	r.ID = string(data[offset : offset+idLen])
	offset += idLen
	r.Payload = nil
	if payloadLen > 0 {
		r.Payload = append([]byte(nil), data[offset:offset+payloadLen]...)
	}
	offset += payloadLen

	return offset, flags&flagME != 0, nil
}

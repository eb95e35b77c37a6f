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

package hce

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/hsanjuan/go-ndef"
)

// ErrInvalidNDEFFile is returned when an NDEF file does not decode.
var ErrInvalidNDEFFile = errors.New("invalid NDEF file")

// RecordSummary is the decoded view of one record of a served message.
type RecordSummary struct {
	Type  string
	Value string
	TNF   byte
	Size  int
}

func (r RecordSummary) String() string {
	switch r.TNF {
	case ndef.NFCForumWellKnownType:
		return fmt.Sprintf("well-known %q: %s", r.Type, r.Value)
	case ndef.MediaType:
		return fmt.Sprintf("media %s (%d bytes)", r.Type, r.Size)
	default:
		return fmt.Sprintf("tnf %d %q (%d bytes)", r.TNF, r.Type, r.Size)
	}
}

// InspectNDEFFile decodes an NDEF file (NLEN + message) with an
// independent NDEF implementation, so what the tag serves can be checked
// against what was configured.
func InspectNDEFFile(file []byte) ([]RecordSummary, error) {
	if len(file) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidNDEFFile, len(file))
	}
	nlen := int(binary.BigEndian.Uint16(file))
	if nlen == 0 {
		return nil, nil
	}
	if len(file) < 2+nlen {
		return nil, fmt.Errorf("%w: NLEN %d exceeds %d bytes of data", ErrInvalidNDEFFile, nlen, len(file)-2)
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(file[2 : 2+nlen]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNDEFFile, err)
	}

	out := make([]RecordSummary, 0, len(msg.Records))
	for i, rec := range msg.Records {
		payload, err := rec.Payload()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d payload: %w", ErrInvalidNDEFFile, i, err)
		}
		raw := payload.Marshal()
		summary := RecordSummary{TNF: rec.TNF(), Type: rec.Type(), Size: len(raw)}
		if summary.TNF == ndef.NFCForumWellKnownType {
			summary.Value = payload.String()
		}
		out = append(out, summary)
	}
	return out, nil
}

// DescribeNDEFFile renders InspectNDEFFile's result as one line per record.
func DescribeNDEFFile(file []byte) (string, error) {
	records, err := InspectNDEFFile(file)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "empty NDEF file", nil
	}

	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteByte('\n')
		}
		_, _ = fmt.Fprintf(&sb, "#%d %s", i+1, r)
	}
	return sb.String(), nil
}

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

package frame

import (
	"bytes"
	"errors"
)

// Parse errors. ErrIncomplete means more bytes are needed; the checksum
// errors mean the frame is corrupt and a NACK is in order.
var (
	ErrIncomplete     = errors.New("frame: incomplete")
	ErrLengthChecksum = errors.New("frame: length checksum mismatch")
	ErrDataChecksum   = errors.New("frame: data checksum mismatch")
	ErrNoStartCode    = errors.New("frame: no start code")
)

// Kind tells ACK, NACK, error and information frames apart.
type Kind int

const (
	KindInformation Kind = iota
	KindAck
	KindNack
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindError:
		return "error"
	default:
		return "information"
	}
}

// Frame is one decoded frame.
type Frame struct {
	// Payload is the frame data after the TFI. It aliases the parsed buffer.
	Payload  []byte
	Kind     Kind
	TFI      byte
	Extended bool
}

// FindStart returns the index of the first 00 FF start code in buf, or -1.
func FindStart(buf []byte) int {
	return bytes.Index(buf, []byte{StartCode1, StartCode2})
}

// Parse decodes the first frame in buf. It returns the frame and the number
// of bytes consumed, including any garbage before the start code and the
// postamble when present. On ErrIncomplete nothing is consumed.
func Parse(buf []byte) (Frame, int, error) {
	start := FindStart(buf)
	if start < 0 {
		return Frame{}, 0, ErrNoStartCode
	}
	body := buf[start+2:]
	if len(body) < 2 {
		return Frame{}, 0, ErrIncomplete
	}

	switch {
	case body[0] == 0x00 && body[1] == 0xFF:
		return Frame{Kind: KindAck}, start + 4 + postambleLen(body[2:]), nil
	case body[0] == 0xFF && body[1] == 0x00:
		return Frame{Kind: KindNack}, start + 4 + postambleLen(body[2:]), nil
	case body[0] == ExtendedMarker && body[1] == ExtendedMarker:
		f, n, err := parseExtended(body)
		if err != nil {
			return Frame{}, consumedOnError(start, err), err
		}
		return f, start + 2 + n, nil
	default:
		f, n, err := parseNormal(body)
		if err != nil {
			return Frame{}, consumedOnError(start, err), err
		}
		return f, start + 2 + n, nil
	}
}

// consumedOnError skips the start code of a corrupt frame so the caller
// can resynchronise, and consumes nothing while waiting for more bytes.
func consumedOnError(start int, err error) int {
	if errors.Is(err, ErrIncomplete) {
		return 0
	}
	return start + 2
}

func postambleLen(rest []byte) int {
	if len(rest) > 0 && rest[0] == Postamble {
		return 1
	}
	return 0
}

func parseNormal(body []byte) (Frame, int, error) {
	dataLen := int(body[0])
	if body[0]+body[1] != 0 {
		return Frame{}, 0, ErrLengthChecksum
	}
	return parseData(body, 2, dataLen, false)
}

func parseExtended(body []byte) (Frame, int, error) {
	if len(body) < 5 {
		return Frame{}, 0, ErrIncomplete
	}
	lenM, lenL, lcs := body[2], body[3], body[4]
	if lenM+lenL+lcs != 0 {
		return Frame{}, 0, ErrLengthChecksum
	}
	return parseData(body, 5, int(lenM)<<8|int(lenL), true)
}

// parseData checks the TFI+data block starting at off and its DCS.
func parseData(body []byte, off, dataLen int, extended bool) (Frame, int, error) {
	if dataLen == 0 {
		return Frame{}, 0, ErrLengthChecksum
	}
	end := off + dataLen
	if len(body) < end+1 {
		return Frame{}, 0, ErrIncomplete
	}
	data := body[off:end]
	if CalculateChecksum(data)+body[end] != 0 {
		return Frame{}, 0, ErrDataChecksum
	}

	f := Frame{TFI: data[0], Payload: data[1:], Extended: extended}
	if f.TFI == ErrorTFI {
		f.Kind = KindError
	}
	return f, end + 1 + postambleLen(body[end+1:]), nil
}

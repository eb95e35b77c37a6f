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
	"errors"
	"fmt"
)

// ErrDataTooLarge is returned when a payload does not fit an extended frame.
var ErrDataTooLarge = errors.New("frame: data too large")

// Build wraps payload (command code and parameters) in an information frame
// with the given TFI. Payloads whose TFI+data length exceeds 255 bytes use
// the extended frame format.
func Build(tfi byte, payload []byte) ([]byte, error) {
	dataLen := 1 + len(payload)
	if dataLen > MaxExtendedDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, dataLen)
	}

	out := make([]byte, 0, dataLen+10)
	out = append(out, Preamble, StartCode1, StartCode2)
	if dataLen > MaxNormalDataLength {
		lenM, lenL := byte(dataLen>>8), byte(dataLen)
		out = append(out, ExtendedMarker, ExtendedMarker, lenM, lenL, Complement(lenM+lenL))
	} else {
		out = append(out, byte(dataLen), Complement(byte(dataLen)))
	}

	out = append(out, tfi)
	out = append(out, payload...)
	dcs := Complement(tfi + CalculateChecksum(payload))
	return append(out, dcs, Postamble), nil
}

// BuildCommand builds a host to PN532 command frame.
func BuildCommand(cmd byte, params []byte) ([]byte, error) {
	payload := make([]byte, 0, 1+len(params))
	payload = append(payload, cmd)
	payload = append(payload, params...)
	return Build(HostToPn532, payload)
}

// BuildResponse builds a PN532 to host response frame.
func BuildResponse(payload []byte) ([]byte, error) {
	return Build(Pn532ToHost, payload)
}

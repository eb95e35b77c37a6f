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

	"github.com/ZaparooProject/go-hce/apdu"
)

// BuildCapabilityContainer returns the 15-byte CC file advertising an NDEF
// file of the given maximum size. The size is clamped to what the control
// TLV can express.
func BuildCapabilityContainer(ndefFileSize int) []byte {
	size := min(max(ndefFileSize, minNDEFFileSize), maxNDEFFileSize)

	cc := make([]byte, 0, CCLength)
	cc = binary.BigEndian.AppendUint16(cc, CCLength)
	cc = append(cc, MappingVersion)
	cc = binary.BigEndian.AppendUint16(cc, MaxReadLength)
	cc = binary.BigEndian.AppendUint16(cc, MaxWriteLength)

	// NDEF File Control TLV
	cc = append(cc, tlvNDEFFileControl, tlvNDEFFileControlLen)
	cc = binary.BigEndian.AppendUint16(cc, apdu.FileIDNdef)
	cc = binary.BigEndian.AppendUint16(cc, uint16(size)) //nolint:gosec // clamped above
	return append(cc, ReadAccessGranted, WriteAccessDenied)
}

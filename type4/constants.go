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

// Package type4 serves one read-only NDEF message the way an NFC Forum
// Type 4 Tag does: an NDEF application holding a Capability Container file
// and an NDEF file, read with offset-addressed READ BINARY commands.
package type4

// Capability Container layout (NFC Forum Type 4 Tag, mapping version 2.0).
const (
	CCLength          = 0x000F // CCLEN: size of the whole CC file
	MappingVersion    = 0x20
	MaxReadLength     = 0x00FF // MLe: largest READ BINARY response the reader should ask for
	MaxWriteLength    = 0x00FF // MLc: advertised but never used, the file is read-only
	ReadAccessGranted = 0x00
	WriteAccessDenied = 0xFF

	tlvNDEFFileControl    = 0x04
	tlvNDEFFileControlLen = 0x06
	minNDEFFileSize       = 0x0005
	maxNDEFFileSize       = 0xFFFE
)

// NDEF file limits.
const (
	// nlenSize is the size of the big-endian length prefix of the NDEF file.
	nlenSize = 2
	// MaxFileLength keeps every byte of the file reachable by a 15-bit
	// READ BINARY offset.
	MaxFileLength = 0x7FFF
	// MaxMessageLength is the largest NDEF message the file can hold.
	MaxMessageLength = MaxFileLength - nlenSize
	// MaxResponseData is the most data one READ BINARY response carries,
	// whatever Le asks for. It keeps responses within what a short APDU can
	// return and what the PN532 sends in one TgSetData.
	MaxResponseData = 256
	// SoftMessageLimit is the message size above which iOS readers start
	// failing. Messages above it are still served, but flagged.
	SoftMessageLimit = 2048
)

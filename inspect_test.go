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
	"testing"

	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-hce/content"
	"github.com/ZaparooProject/go-hce/type4"
)

func TestInspectNDEFFileURL(t *testing.T) {
	t.Parallel()

	file := type4.BuildFile(content.URL("https://a.io"))
	records, err := InspectNDEFFile(file.Bytes)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ndef.NFCForumWellKnownType, records[0].TNF)
	assert.Equal(t, "U", records[0].Type)
	assert.Equal(t, "https://a.io", records[0].Value)

	desc, err := DescribeNDEFFile(file.Bytes)
	require.NoError(t, err)
	assert.Equal(t, `#1 well-known "U": https://a.io`, desc)
}

func TestInspectNDEFFileVCard(t *testing.T) {
	t.Parallel()

	card := "BEGIN:VCARD\nVERSION:3.0\nFN:Ada\nEND:VCARD"
	file := type4.BuildFile(content.VCard(card))
	records, err := InspectNDEFFile(file.Bytes)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ndef.MediaType, records[0].TNF)
	assert.Equal(t, "text/x-vcard", records[0].Type)
	assert.Equal(t, len(card), records[0].Size)
}

func TestInspectNDEFFileSeveralURLs(t *testing.T) {
	t.Parallel()

	file := type4.BuildFile(content.URLs("https://a.io", "http://b.io"))
	desc, err := DescribeNDEFFile(file.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "#1 well-known \"U\": https://a.io\n#2 well-known \"U\": http://b.io", desc)
}

func TestInspectNDEFFileEmpty(t *testing.T) {
	t.Parallel()

	records, err := InspectNDEFFile(type4.EmptyFile())
	require.NoError(t, err)
	assert.Empty(t, records)

	desc, err := DescribeNDEFFile(type4.EmptyFile())
	require.NoError(t, err)
	assert.Equal(t, "empty NDEF file", desc)
}

func TestInspectNDEFFileInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file []byte
	}{
		{name: "too short", file: []byte{0x00}},
		{name: "truncated", file: []byte{0x00, 0x09, 0xD1, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := InspectNDEFFile(tt.file)
			require.ErrorIs(t, err, ErrInvalidNDEFFile)
		})
	}
}

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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZaparooProject/go-hce/apdu"
	"github.com/ZaparooProject/go-hce/content"
)

func TestReadBinary(t *testing.T) {
	t.Parallel()

	buf := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	tests := []struct {
		name   string
		want   []byte
		offset int
		length int
		sw     apdu.StatusWord
	}{
		{name: "start", offset: 0, length: 4, want: []byte{0, 1, 2, 3}, sw: apdu.SWSuccess},
		{name: "middle", offset: 3, length: 2, want: []byte{3, 4}, sw: apdu.SWSuccess},
		{name: "clamped", offset: 8, length: 5, want: []byte{8, 9}, sw: apdu.SWSuccess},
		{name: "whole", offset: 0, length: 256, want: buf, sw: apdu.SWSuccess},
		{name: "end of file", offset: 10, length: 1, sw: apdu.SWSuccess},
		{name: "past end", offset: 11, length: 1, sw: apdu.SWWrongParameters},
		{name: "negative", offset: -1, length: 1, sw: apdu.SWWrongParameters},
		{name: "zero length", offset: 2, length: 0, sw: apdu.SWSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, sw := ReadBinary(buf, tt.offset, tt.length)
			assert.Equal(t, tt.sw, sw)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReadBinaryDoesNotAlias(t *testing.T) {
	t.Parallel()

	buf := []byte{1, 2, 3}
	got, _ := ReadBinary(buf, 0, 3)
	got[0] = 0xFF
	assert.Equal(t, byte(1), buf[0])
}

func TestReadBinaryPastEndAlwaysWrongParameters(t *testing.T) {
	t.Parallel()

	for size := 0; size < 40; size++ {
		buf := bytes.Repeat([]byte{0xAA}, size)
		for offset := size + 1; offset < size+300; offset += 7 {
			got, sw := ReadBinary(buf, offset, 1+offset%256)
			assert.Empty(t, got)
			assert.Equal(t, apdu.SWWrongParameters, sw)
		}
		got, sw := ReadBinaryWithPolicy(buf, size, 16, EchoWrongLength)
		assert.Empty(t, got)
		assert.Equal(t, apdu.SWSuccess, sw, "end of file is a successful empty read")
	}
}

func TestReadBinaryEchoWrongLength(t *testing.T) {
	t.Parallel()

	buf := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	got, sw := ReadBinaryWithPolicy(buf, 6, 10, EchoWrongLength)
	assert.Empty(t, got)
	assert.Equal(t, apdu.NewStatusWord(0x6C, 0x04), sw)

	got, sw = ReadBinaryWithPolicy(buf, 6, 4, EchoWrongLength)
	assert.Equal(t, []byte{6, 7, 8, 9}, got)
	assert.Equal(t, apdu.SWSuccess, sw)
}

func TestChunkedReadsReconstructFile(t *testing.T) {
	t.Parallel()

	contents := []content.Content{
		content.None(),
		content.URL("https://a.io"),
		content.URLs("https://a.io/one", "http://b.io/two", "ftp://c.io"),
		content.VCard("BEGIN:VCARD\nVERSION:3.0\nFN:" + string(bytes.Repeat([]byte("A"), 700)) + "\nEND:VCARD\n"),
	}
	chunks := []int{1, 2, 3, 7, 15, 16, 59, 128, 255, 256}

	for _, c := range contents {
		file := BuildFile(c).Bytes
		for _, chunk := range chunks {
			var got []byte
			for offset := 0; ; {
				part, sw := ReadBinary(file, offset, chunk)
				assert.Equal(t, apdu.SWSuccess, sw)
				if len(part) == 0 {
					break
				}
				got = append(got, part...)
				offset += len(part)
			}
			assert.Equal(t, file, got, "%s in chunks of %d", c, chunk)
		}
	}
}

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-hce/content"
	"github.com/ZaparooProject/go-hce/pkg/ndef"
)

func parseFile(t *testing.T, file []byte) *ndef.Message {
	t.Helper()

	require.GreaterOrEqual(t, len(file), 2)
	nlen := int(file[0])<<8 | int(file[1])
	require.Len(t, file, 2+nlen)

	var msg ndef.Message
	n, err := msg.Unmarshal(file[2:])
	require.NoError(t, err)
	require.Equal(t, nlen, n)
	return &msg
}

func TestBuildFileNone(t *testing.T) {
	t.Parallel()

	f := BuildFile(content.None())
	assert.Equal(t, []byte{0x00, 0x00}, f.Bytes)
	assert.ErrorIs(t, f.Err, ErrNoContent)
	assert.Zero(t, f.MessageLength)
}

func TestBuildFileEmptyTextFallsBackToNone(t *testing.T) {
	t.Parallel()

	for _, c := range []content.Content{content.URL(""), content.VCard("")} {
		f := BuildFile(c)
		assert.Equal(t, []byte{0x00, 0x00}, f.Bytes, c.String())
		assert.ErrorIs(t, f.Err, ErrNoContent)
	}
}

func TestBuildFileURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		code    byte
		payload string
	}{
		{url: "https://example.com", code: 0x04, payload: "example.com"},
		{url: "http://example.com", code: 0x03, payload: "example.com"},
		{url: "geo:37.78,-122.41", code: 0x00, payload: "geo:37.78,-122.41"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			f := BuildFile(content.URL(tt.url))
			require.NoError(t, f.Err)
			msg := parseFile(t, f.Bytes)
			require.Len(t, msg.Records, 1)

			rec := msg.Records[0]
			assert.Equal(t, ndef.TNFWellKnown, rec.TNF)
			assert.Equal(t, "U", rec.Type)
			assert.Equal(t, tt.code, rec.Payload[0])
			assert.Equal(t, tt.payload, string(rec.Payload[1:]))
		})
	}
}

func TestBuildFileExactBytes(t *testing.T) {
	t.Parallel()

	f := BuildFile(content.URL("https://a.io"))
	want := []byte{
		0x00, 0x09, // NLEN
		0xD1, 0x01, 0x05, 'U', 0x04, 'a', '.', 'i', 'o',
	}
	assert.Equal(t, want, f.Bytes)
	assert.Equal(t, 9, f.MessageLength)
	assert.Equal(t, 1, f.Records)
}

func TestBuildFileVCard(t *testing.T) {
	t.Parallel()

	vcard := "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Zoë Example\r\nTEL:+33123456789\r\nEND:VCARD\r\n"
	f := BuildFile(content.VCard(vcard))
	require.NoError(t, f.Err)

	msg := parseFile(t, f.Bytes)
	require.Len(t, msg.Records, 1)
	assert.Equal(t, ndef.TNFMedia, msg.Records[0].TNF)
	assert.Equal(t, "text/x-vcard", msg.Records[0].Type)
	assert.Equal(t, vcard, string(msg.Records[0].Payload))
}

func TestBuildFileSeveralURLs(t *testing.T) {
	t.Parallel()

	f := BuildFile(content.URLs("https://a.io", "", "http://b.io"))
	require.NoError(t, f.Err)
	assert.Equal(t, 2, f.Records)

	msg := parseFile(t, f.Bytes)
	require.Len(t, msg.Records, 2)
	assert.Equal(t, byte(0x03), msg.Records[1].Payload[0])
}

func TestBuildFileInvalidUTF8(t *testing.T) {
	t.Parallel()

	f := BuildFile(content.VCard("BEGIN:VCARD\xff"))
	assert.Equal(t, []byte{0x00, 0x00}, f.Bytes)
	assert.ErrorIs(t, f.Err, ErrInvalidText)

	f = BuildFile(content.URL("https://\xfe"))
	assert.ErrorIs(t, f.Err, ErrInvalidText)
}

func TestBuildFileSoftLimitDoesNotChangeBytes(t *testing.T) {
	t.Parallel()

	big := "BEGIN:VCARD\nNOTE:" + strings.Repeat("n", 3000) + "\nEND:VCARD\n"
	f := BuildFile(content.VCard(big))
	require.NoError(t, f.Err)
	assert.True(t, f.Oversize)

	msg := parseFile(t, f.Bytes)
	assert.Equal(t, big, string(msg.Records[0].Payload))

	small := BuildFile(content.URL("https://a.io"))
	assert.False(t, small.Oversize)
}

func TestBuildFileTooLarge(t *testing.T) {
	t.Parallel()

	f := BuildFile(content.VCard(strings.Repeat("x", MaxMessageLength)))
	assert.Equal(t, []byte{0x00, 0x00}, f.Bytes)
	assert.ErrorIs(t, f.Err, ErrMessageTooLarge)
}

func TestBuildFileDeterministic(t *testing.T) {
	t.Parallel()

	c := content.URLs("https://a.io", "https://b.io")
	assert.Equal(t, BuildFile(c).Bytes, BuildFile(c).Bytes)
}

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

package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusWordBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x90, 0x00}, SWSuccess.Bytes())
	assert.Equal(t, []byte{0x6F, 0x00}, SWError.Bytes())
	assert.Equal(t, []byte{0x6A, 0x82}, SWNotFound.Bytes())
	assert.Equal(t, []byte{0x6B, 0x00}, SWWrongParameters.Bytes())
}

func TestWrongLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		available int
		want      StatusWord
		decoded   int
	}{
		{available: 0, want: 0x6C00, decoded: 256},
		{available: 7, want: 0x6C07, decoded: 7},
		{available: 255, want: 0x6CFF, decoded: 255},
		{available: 256, want: 0x6C00, decoded: 256},
		{available: -3, want: 0x6C00, decoded: 256},
	}
	for _, tt := range tests {
		sw := WrongLength(tt.available)
		assert.Equal(t, tt.want, sw)
		n, ok := sw.AvailableLength()
		assert.True(t, ok)
		assert.Equal(t, tt.decoded, n)
	}

	_, ok := SWSuccess.AvailableLength()
	assert.False(t, ok)
}

func TestRespondAndSplit(t *testing.T) {
	t.Parallel()

	resp := Respond([]byte{0x01, 0x02}, SWSuccess)
	assert.Equal(t, []byte{0x01, 0x02, 0x90, 0x00}, resp)

	data, sw, err := SplitResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, data)
	assert.Equal(t, SWSuccess, sw)

	_, _, err = SplitResponse([]byte{0x90})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestStatusWordString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "90 00 (success)", SWSuccess.String())
	assert.Equal(t, "6A 82 (file not found)", SWNotFound.String())
	assert.Equal(t, "6C 05 (wrong length, 5 available)", WrongLength(5).String())
	assert.Equal(t, "12 34 (unknown)", StatusWord(0x1234).String())
}

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

package content

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreStartsEmpty(t *testing.T) {
	t.Parallel()

	s := NewStore()
	assert.Equal(t, KindNone, s.Snapshot().Kind())
	assert.Zero(t, s.Version())
}

func TestStoreUpdates(t *testing.T) {
	t.Parallel()

	s := NewStore()

	s.SetURL("https://a.io")
	assert.True(t, s.Snapshot().Equal(URL("https://a.io")))

	s.AddURL("https://b.io")
	s.AddURL("https://a.io")
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, s.Snapshot().URLs())

	s.SetVCard("BEGIN:VCARD\nEND:VCARD")
	assert.Equal(t, KindVCard, s.Snapshot().Kind())

	// An empty URL update leaves the vCard alone.
	s.SetURL("")
	assert.Equal(t, KindVCard, s.Snapshot().Kind())

	s.SetVCard("")
	assert.Equal(t, KindNone, s.Snapshot().Kind())

	s.AddURL("https://c.io")
	assert.True(t, s.Snapshot().Equal(URL("https://c.io")))

	s.AddURL("")
	assert.Equal(t, KindNone, s.Snapshot().Kind())

	s.Set(VCard("x"))
	s.Clear()
	assert.Equal(t, KindNone, s.Snapshot().Kind())
}

func TestStoreVersionCountsOnlyChanges(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.SetURL("https://a.io")
	s.AddURL("https://a.io") // already present
	s.SetVCard("")           // nothing to clear
	assert.Equal(t, uint64(1), s.Version())
}

func TestStoreWatch(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var got []Content
	cancel := s.Watch(func(c Content, _ uint64) { got = append(got, c) })

	s.SetURL("https://a.io")
	s.SetVCard("v")
	cancel()
	s.Clear()

	require.Len(t, got, 2)
	assert.Equal(t, KindURL, got[0].Kind())
	assert.Equal(t, KindVCard, got[1].Kind())
}

func TestStoreWatchMayUpdateStore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Watch(func(c Content, _ uint64) {
		if c.Kind() == KindVCard {
			s.Clear()
		}
	})
	s.SetVCard("v")
	assert.Equal(t, KindNone, s.Snapshot().Kind())
}

func TestStoreWatchDeliversInVersionOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var versions []uint64
	var last Content
	s.Watch(func(c Content, v uint64) {
		versions = append(versions, v)
		last = c
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.SetURL(fmt.Sprintf("https://example.com/%d/%d", w, i))
			}
		}()
	}
	wg.Wait()

	require.Len(t, versions, 800)
	for i, v := range versions {
		assert.Equal(t, uint64(i+1), v)
	}
	cur, version := s.Current()
	assert.Equal(t, uint64(800), version)
	assert.True(t, cur.Equal(last))
}

func TestStoreWatchNestedUpdateIsDeliveredAfter(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var kinds []Kind
	s.Watch(func(c Content, _ uint64) {
		kinds = append(kinds, c.Kind())
		if c.Kind() == KindVCard {
			s.SetURL("https://a.io")
		}
	})
	s.SetVCard("v")
	assert.Equal(t, []Kind{KindVCard, KindURL}, kinds)
}

func TestStoreConcurrentSnapshotsAreWhole(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	var torn atomic.Int64
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c := s.Snapshot()
				switch c.Kind() {
				case KindURL:
					if c.VCardText() != "" || len(c.URLs()) == 0 {
						torn.Add(1)
					}
				case KindVCard:
					if len(c.URLs()) != 0 || c.VCardText() == "" {
						torn.Add(1)
					}
				case KindNone:
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		if i%2 == 0 {
			s.SetURL(fmt.Sprintf("https://example.com/%d", i))
		} else {
			s.SetVCard(fmt.Sprintf("BEGIN:VCARD\nFN:%d\nEND:VCARD", i))
		}
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, torn.Load())
	assert.Equal(t, uint64(2000), s.Version())
}

func TestDefaultIsShared(t *testing.T) {
	t.Parallel()

	assert.Same(t, Default(), Default())
}

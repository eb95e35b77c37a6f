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
	"sync/atomic"

	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

// Store is a single-slot holder for the current Content. Reads are one
// atomic load and never block. Writes replace the whole value; they are
// serialized among themselves so read-modify-write updates like AddURL
// cannot lose an update.
type Store struct {
	current   atomic.Pointer[entry]
	listeners map[uint64]func(Content, uint64)
	pending   []entry
	nextID    uint64
	writeMu   syncutil.Mutex
	watchMu   syncutil.Mutex
	notifyMu  syncutil.Mutex
	notifying bool
}

// entry is one published value and the version it was published as.
type entry struct {
	content Content
	version uint64
}

var defaultStore = NewStore()

// Default returns the process-wide store.
func Default() *Store {
	return defaultStore
}

// NewStore creates a store holding None at version 0.
func NewStore() *Store {
	s := &Store{listeners: make(map[uint64]func(Content, uint64))}
	s.current.Store(&entry{content: None()})
	return s
}

// Snapshot returns the current content.
func (s *Store) Snapshot() Content {
	return s.current.Load().content
}

// Current returns the current content together with its version, read in
// one load.
func (s *Store) Current() (Content, uint64) {
	e := s.current.Load()
	return e.content, e.version
}

// Version counts the updates published so far.
func (s *Store) Version() uint64 {
	return s.current.Load().version
}

// Set publishes new content.
func (s *Store) Set(c Content) {
	s.update(func(Content) (Content, bool) { return c, true })
}

// Clear publishes None.
func (s *Store) Clear() {
	s.Set(None())
}

// SetURL serves a single URL, replacing a vCard or earlier URLs. An empty
// URL removes configured URLs and leaves a vCard alone.
func (s *Store) SetURL(url string) {
	s.update(func(cur Content) (Content, bool) {
		if url == "" {
			return clearKind(cur, KindURL)
		}
		return URL(url), true
	})
}

// AddURL appends a URL to the configured ones unless already present.
// A vCard is replaced. An empty URL behaves like SetURL("").
func (s *Store) AddURL(url string) {
	s.update(func(cur Content) (Content, bool) {
		if url == "" {
			return clearKind(cur, KindURL)
		}
		if cur.Kind() != KindURL {
			return URL(url), true
		}
		next := URLs(append(cur.URLs(), url)...)
		return next, !next.Equal(cur)
	})
}

// SetVCard serves a contact card, replacing any URLs. An empty text removes
// a configured vCard and leaves URLs alone.
func (s *Store) SetVCard(text string) {
	s.update(func(cur Content) (Content, bool) {
		if text == "" {
			return clearKind(cur, KindVCard)
		}
		return VCard(text), true
	})
}

func clearKind(cur Content, kind Kind) (Content, bool) {
	if cur.Kind() != kind {
		return cur, false
	}
	return None(), true
}

// Watch registers fn to be called with every published content and its
// version. Listeners see updates one at a time, in version order, after the
// new value is visible. The call may come from a later updater than the
// one that published the value, so an update can return before its
// listeners have run. The returned function removes the listener.
func (s *Store) Watch(fn func(c Content, version uint64)) (cancel func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.listeners, id)
		s.watchMu.Unlock()
	}
}

func (s *Store) update(next func(Content) (Content, bool)) {
	s.writeMu.Lock()
	cur := s.current.Load()
	c, changed := next(cur.content)
	if !changed {
		s.writeMu.Unlock()
		return
	}
	e := entry{content: c, version: cur.version + 1}
	s.current.Store(&e)
	s.notifyMu.Lock()
	s.pending = append(s.pending, e)
	s.notifyMu.Unlock()
	s.writeMu.Unlock()

	s.notify()
}

// notify delivers queued updates unless another goroutine, or an outer
// call on this one, is already doing so.
func (s *Store) notify() {
	s.notifyMu.Lock()
	if s.notifying {
		s.notifyMu.Unlock()
		return
	}
	s.notifying = true
	for len(s.pending) > 0 {
		e := s.pending[0]
		s.pending = s.pending[1:]
		s.notifyMu.Unlock()
		s.deliver(e)
		s.notifyMu.Lock()
	}
	s.notifying = false
	s.notifyMu.Unlock()
}

func (s *Store) deliver(e entry) {
	s.watchMu.Lock()
	fns := make([]func(Content, uint64), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(e.content, e.version)
	}
}

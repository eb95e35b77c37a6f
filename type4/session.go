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
	"github.com/ZaparooProject/go-hce/apdu"
	"github.com/ZaparooProject/go-hce/content"
)

// State is the selection state of a tag session.
type State int

const (
	// StateIdle: no application selected.
	StateIdle State = iota
	// StateAppSelected: NDEF application selected, no file selected.
	StateAppSelected
	// StateCCSelected: Capability Container file selected.
	StateCCSelected
	// StateFileSelected: NDEF file selected.
	StateFileSelected
)

func (s State) String() string {
	switch s {
	case StateAppSelected:
		return "app-selected"
	case StateCCSelected:
		return "cc-selected"
	case StateFileSelected:
		return "file-selected"
	default:
		return "idle"
	}
}

// Transition describes what one command did to a session.
type Transition struct {
	Command apdu.Classified
	From    State
	To      State
	Status  apdu.StatusWord
	// Served is the number of file bytes returned.
	Served int
	// Rearmed is set when the command snapshotted content and rebuilt the
	// session's NDEF file and CC.
	Rearmed bool
}

// Changed reports whether the command moved the session to another state.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Option configures a Session.
type Option func(*Session)

// WithStore makes the session read content from s instead of content.Default().
func WithStore(s *content.Store) Option {
	return func(sess *Session) {
		sess.store = s
	}
}

// WithLengthPolicy sets how over-long READ BINARY requests are answered.
func WithLengthPolicy(p LengthPolicy) Option {
	return func(sess *Session) {
		sess.policy = p
	}
}

// WithFixedMaxNDEFSize advertises a fixed maximum NDEF file size in the CC
// instead of the size of the current file.
func WithFixedMaxNDEFSize(n int) Option {
	return func(sess *Session) {
		sess.fixedMaxNDEFSize = n
	}
}

// WithRejectWhenEmpty answers 6A 82 to the NDEF application SELECT while
// no content is configured, so readers see no NDEF tag at all rather than
// an empty one.
func WithRejectWhenEmpty() Option {
	return func(sess *Session) {
		sess.rejectWhenEmpty = true
	}
}

// Session is the file-selection state machine of one tag presentation,
// from activation until deactivation. It is not safe for concurrent use;
// a host answers one command at a time.
//
// Content is snapshotted when the NDEF application is selected, and the
// NDEF file and CC built from that snapshot are served until the next
// selection or Reset, whatever happens to the store meanwhile.
type Session struct {
	store            *content.Store
	snapshot         content.Content
	cc               []byte
	file             File
	state            State
	policy           LengthPolicy
	fixedMaxNDEFSize int
	rejectWhenEmpty  bool
}

// NewSession returns an idle session.
func NewSession(opts ...Option) Session {
	s := Session{store: content.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Content returns the content snapshot being served.
func (s *Session) Content() content.Content {
	return s.snapshot
}

// File returns the NDEF file being served. Its Bytes are nil until the
// NDEF application has been selected.
func (s *Session) File() File {
	return s.file
}

// CapabilityContainer returns the CC file being served, nil until the NDEF
// application has been selected.
func (s *Session) CapabilityContainer() []byte {
	return s.cc
}

// Reset ends the session: back to idle, cached files dropped.
func (s *Session) Reset() {
	s.state = StateIdle
	s.snapshot = content.None()
	s.file = File{}
	s.cc = nil
}

// Handle answers one command APDU and reports the transition it caused.
// It never fails: malformed or unexpected commands get an error status
// word and leave the state as it was.
func (s *Session) Handle(raw []byte) ([]byte, Transition) {
	cmd := apdu.Classify(raw)
	tr := Transition{Command: cmd, From: s.state, To: s.state}

	var data []byte
	switch {
	case len(raw) < 4:
		tr.Status = apdu.SWError
	case cmd.Kind == apdu.SelectNdefApplication:
		tr.Status, tr.Rearmed = s.selectApplication()
	case s.state == StateIdle:
		tr.Status = apdu.SWNotFound
	case s.state == StateAppSelected:
		tr.Status = s.handleAppSelected(cmd)
	default:
		data, tr.Status = s.handleFileSelected(cmd)
	}

	tr.To = s.state
	tr.Served = len(data)
	return apdu.Respond(data, tr.Status), tr
}

func (s *Session) selectApplication() (apdu.StatusWord, bool) {
	snap := s.store.Snapshot()
	if s.rejectWhenEmpty && snap.IsEmpty() {
		s.Reset()
		return apdu.SWNotFound, false
	}

	s.snapshot = snap
	s.file = BuildFile(snap)
	size := len(s.file.Bytes)
	if s.fixedMaxNDEFSize > 0 {
		size = s.fixedMaxNDEFSize
	}
	s.cc = BuildCapabilityContainer(size)
	s.state = StateAppSelected
	return apdu.SWSuccess, true
}

func (s *Session) selectFile(kind apdu.Kind) bool {
	switch kind {
	case apdu.SelectCapabilityContainer:
		s.state = StateCCSelected
		return true
	case apdu.SelectNdefFile:
		s.state = StateFileSelected
		return true
	default:
		return false
	}
}

func (s *Session) handleAppSelected(cmd apdu.Classified) apdu.StatusWord {
	if s.selectFile(cmd.Kind) {
		return apdu.SWSuccess
	}
	// Reads before a file is selected, and anything else.
	return apdu.SWNotFound
}

func (s *Session) handleFileSelected(cmd apdu.Classified) ([]byte, apdu.StatusWord) {
	if s.selectFile(cmd.Kind) {
		return nil, apdu.SWSuccess
	}
	if cmd.Kind != apdu.ReadBinary {
		// READ RECORD addresses records, not bytes, and is not supported.
		return nil, apdu.SWError
	}
	if cmd.ReservedBit {
		return nil, apdu.SWWrongParameters
	}

	buf := s.file.Bytes
	if s.state == StateCCSelected {
		buf = s.cc
	}
	return ReadBinaryWithPolicy(buf, cmd.Offset, min(cmd.Length, MaxResponseData), s.policy)
}

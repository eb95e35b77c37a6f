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
	"github.com/ZaparooProject/go-hce/content"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
	"github.com/ZaparooProject/go-hce/type4"
)

// DeactivationReason says why a reader session ended.
type DeactivationReason int

const (
	// DeactivationLinkLoss means the reader left the field or the link broke.
	DeactivationLinkLoss DeactivationReason = iota
	// DeactivationDeselected means the reader deselected the card.
	DeactivationDeselected
)

func (r DeactivationReason) String() string {
	if r == DeactivationDeselected {
		return "deselected"
	}
	return "link-loss"
}

// SessionHook observes every command a session answers.
type SessionHook func(type4.Transition)

// Stats counts what an Emulator has served.
type Stats struct {
	Activations   uint64
	Deactivations uint64
	Commands      uint64
	Rejected      uint64
	BytesServed   uint64
}

// EmulatorOption configures an Emulator
type EmulatorOption func(*Emulator)

// WithStore serves content from s instead of content.Default().
func WithStore(s *content.Store) EmulatorOption {
	return func(e *Emulator) {
		e.store = s
	}
}

// WithSessionOptions passes options to every session the emulator creates.
func WithSessionOptions(opts ...type4.Option) EmulatorOption {
	return func(e *Emulator) {
		e.sessionOpts = append(e.sessionOpts, opts...)
	}
}

// WithSessionHook registers fn to observe each answered command. It runs
// after the emulator lock is released.
func WithSessionHook(fn SessionHook) EmulatorOption {
	return func(e *Emulator) {
		e.hook = fn
	}
}

// Emulator is the host side of a Type 4 Tag: it owns one tag session and
// answers the command APDUs a transport delivers. It is safe for concurrent
// use, but commands are answered one at a time.
type Emulator struct {
	store       *content.Store
	hook        SessionHook
	session     type4.Session
	sessionOpts []type4.Option
	stats       Stats
	mu          syncutil.Mutex
}

// NewEmulator creates an idle Emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{store: content.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.session = e.newSession()
	return e
}

func (e *Emulator) newSession() type4.Session {
	opts := append([]type4.Option{type4.WithStore(e.store)}, e.sessionOpts...)
	return type4.NewSession(opts...)
}

// Store returns the content store the emulator serves from.
func (e *Emulator) Store() *content.Store {
	return e.store
}

// Activate starts a new reader session.
func (e *Emulator) Activate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session = e.newSession()
	e.stats.Activations++
	Debugf("Reader activated, serving %s", e.store.Snapshot())
}

// ProcessCommand answers one command APDU. It never fails: anything the
// tag does not understand gets an error status word.
func (e *Emulator) ProcessCommand(raw []byte) []byte {
	e.mu.Lock()
	resp, tr := e.session.Handle(raw)
	e.stats.Commands++
	e.stats.BytesServed += uint64(tr.Served) //nolint:gosec // never negative
	if !tr.Status.IsSuccess() {
		e.stats.Rejected++
	}
	if tr.Rearmed {
		e.logFile(e.session.File())
	}
	hook := e.hook
	e.mu.Unlock()

	Debugf("APDU %s -> %s [%s %s->%s]", FormatHex(raw), FormatHex(resp), tr.Command.Kind, tr.From, tr.To)
	if hook != nil {
		hook(tr)
	}
	return resp
}

func (*Emulator) logFile(f type4.File) {
	if f.Err != nil {
		Debugf("Serving empty NDEF file: %v", f.Err)
		return
	}
	Debugf("Serving NDEF message of %d bytes in %d record(s)", f.MessageLength, f.Records)
	if f.Records > 1 {
		Debugf("Warning: message has %d records; many readers only act on the first", f.Records)
	}
	if f.Oversize {
		Debugf("Warning: message is %d bytes, above the %d bytes some readers accept",
			f.MessageLength, type4.SoftMessageLimit)
	}
}

// Deactivate ends the current reader session.
func (e *Emulator) Deactivate(reason DeactivationReason) {
	e.mu.Lock()
	defer e.mu.Unlock()

	Debugf("Reader deactivated (%s) in state %s", reason, e.session.State())
	e.session.Reset()
	e.stats.Deactivations++
}

// State returns the state of the current session.
func (e *Emulator) State() type4.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.State()
}

// Stats returns a copy of the counters.
func (e *Emulator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

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

package control

import (
	"github.com/ZaparooProject/go-hce/content"
)

// Request types accepted on the WebSocket channel.
const (
	RequestSetURL   = "set_url"
	RequestAddURL   = "add_url"
	RequestSetVCard = "set_vcard"
	RequestClear    = "clear"
	RequestGet      = "get"
)

// Message types sent to WebSocket clients.
const (
	MessageHello          = "hello"
	MessageContent        = "content"
	MessageContentChanged = "content_changed"
	MessageError          = "error"
)

// Request is a client message on the WebSocket channel.
type Request struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Message is a server message on the WebSocket channel. Responses carry
// the ID of the request they answer. Messages with content carry the store
// version it was published as; a client never receives a content_changed
// older than content it has already been sent.
type Message struct {
	Content  *ContentView `json:"content,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Error    string       `json:"error,omitempty"`
	ClientID string       `json:"client_id,omitempty"`
	Version  uint64       `json:"version,omitempty"`
}

// ContentView is the JSON form of content.Content.
type ContentView struct {
	Type  string   `json:"type"`
	VCard string   `json:"vcard,omitempty"`
	URLs  []string `json:"urls,omitempty"`
}

// NewContentView converts c for the wire.
func NewContentView(c content.Content) *ContentView {
	v := &ContentView{Type: c.Kind().String()}
	switch c.Kind() {
	case content.KindURL:
		v.URLs = c.URLs()
	case content.KindVCard:
		v.VCard = c.VCardText()
	case content.KindNone:
	}
	return v
}

// contentUpdate is the body of PUT /api/content and POST /api/content/urls.
type contentUpdate struct {
	Type  string   `json:"type"`
	Value string   `json:"value"`
	URLs  []string `json:"urls,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

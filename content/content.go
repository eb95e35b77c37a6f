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

// Package content holds what the emulated tag serves: nothing, one or more
// URLs, or a vCard. Content values are immutable; the Store publishes them
// with a single atomic pointer swap.
package content

import (
	"fmt"
	"slices"
)

// Kind tells which variant a Content holds.
type Kind int

const (
	KindNone Kind = iota
	KindURL
	KindVCard
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindVCard:
		return "vcard"
	default:
		return "none"
	}
}

// Content is the tagged union None | URL | VCard.
type Content struct {
	vcard string
	urls  []string
	kind  Kind
}

// None returns empty content.
func None() Content {
	return Content{}
}

// URL returns content serving a single URL. An empty string is kept as is;
// the builder treats it like None.
func URL(text string) Content {
	return Content{kind: KindURL, urls: []string{text}}
}

// URLs returns content serving several URLs, one record each, in order.
// Duplicates are dropped. Without any URL the result is None.
func URLs(list ...string) Content {
	var urls []string
	for _, u := range list {
		if !slices.Contains(urls, u) {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return None()
	}
	return Content{kind: KindURL, urls: urls}
}

// VCard returns content serving a contact card. An empty string is kept
// as is; the builder treats it like None.
func VCard(text string) Content {
	return Content{kind: KindVCard, vcard: text}
}

// Kind returns the variant.
func (c Content) Kind() Kind {
	return c.kind
}

// URLs returns a copy of the configured URLs.
func (c Content) URLs() []string {
	return slices.Clone(c.urls)
}

// URL returns the first configured URL, or "".
func (c Content) URL() string {
	if len(c.urls) == 0 {
		return ""
	}
	return c.urls[0]
}

// VCardText returns the vCard text, or "".
func (c Content) VCardText() string {
	return c.vcard
}

// IsEmpty reports whether there is nothing to serve.
func (c Content) IsEmpty() bool {
	switch c.kind {
	case KindURL:
		return !slices.ContainsFunc(c.urls, func(u string) bool { return u != "" })
	case KindVCard:
		return c.vcard == ""
	default:
		return true
	}
}

// Equal reports whether both values hold the same content.
func (c Content) Equal(other Content) bool {
	return c.kind == other.kind && c.vcard == other.vcard && slices.Equal(c.urls, other.urls)
}

func (c Content) String() string {
	switch c.kind {
	case KindURL:
		if len(c.urls) == 1 {
			return fmt.Sprintf("url(%s)", c.urls[0])
		}
		return fmt.Sprintf("url(%d: %v)", len(c.urls), c.urls)
	case KindVCard:
		return fmt.Sprintf("vcard(%d bytes)", len(c.vcard))
	default:
		return "none"
	}
}

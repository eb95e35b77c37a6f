// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ndef

// MIME types served by the emulator.
const (
	// MIMETypeVCard is the media type phones register contact import for.
	// The newer "text/vcard" is not recognized by every reader.
	MIMETypeVCard = "text/x-vcard"
	MIMETypeText  = "text/plain"
)

// NewMediaRecord creates a media-type record.
func NewMediaRecord(mediaType string, payload []byte) *Record {
	return &Record{
		TNF:     TNFMedia,
		Type:    mediaType,
		Payload: payload,
	}
}

// NewVCardRecord creates a text/x-vcard record carrying the vCard text verbatim.
func NewVCardRecord(vcard string) *Record {
	return NewMediaRecord(MIMETypeVCard, []byte(vcard))
}

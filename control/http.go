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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/content"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hce.Debugf("control: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleGetContent answers GET /api/content
func (s *Server) handleGetContent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewContentView(s.store.Snapshot()))
}

// handlePutContent answers PUT /api/content. The body names the content
// type: {"type":"url","value":...}, {"type":"url","urls":[...]},
// {"type":"vcard","value":...} or {"type":"none"}.
func (s *Server) handlePutContent(w http.ResponseWriter, r *http.Request) {
	var req contentUpdate
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch req.Type {
	case content.KindURL.String():
		if len(req.URLs) > 0 {
			s.store.Set(content.URLs(req.URLs...))
		} else {
			s.store.SetURL(req.Value)
		}
	case content.KindVCard.String():
		s.store.SetVCard(req.Value)
	case content.KindNone.String():
		s.store.Clear()
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown content type %q", req.Type))
		return
	}
	hce.Debugf("control: content set over HTTP: %s", s.store.Snapshot())
	writeJSON(w, http.StatusOK, NewContentView(s.store.Snapshot()))
}

// handleAddURL answers POST /api/content/urls
func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var req contentUpdate
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.store.AddURL(req.Value)
	writeJSON(w, http.StatusOK, NewContentView(s.store.Snapshot()))
}

// handleDeleteContent answers DELETE /api/content
func (s *Server) handleDeleteContent(w http.ResponseWriter, _ *http.Request) {
	s.store.Clear()
	writeJSON(w, http.StatusOK, NewContentView(s.store.Snapshot()))
}

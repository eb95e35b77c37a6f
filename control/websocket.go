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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ZaparooProject/go-hce"
)

// client is one WebSocket connection. gorilla/websocket allows a single
// concurrent writer, so every message is queued on out and written by
// writePump.
type client struct {
	conn      *websocket.Conn
	out       chan *Message
	done      chan struct{}
	id        string
	closeOnce sync.Once

	// lastVersion is only touched by writePump.
	lastVersion uint64
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		id:   uuid.NewString(),
		out:  make(chan *Message, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the client is
// closed or too far behind.
func (c *client) enqueue(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			if msg.Version != 0 {
				if msg.Type == MessageContentChanged && msg.Version <= c.lastVersion {
					continue
				}
				c.lastVersion = max(c.lastVersion, msg.Version)
			}
			if err := c.write(msg); err != nil {
				hce.Debugf("control: client %s: %v", c.id, err)
				c.close()
				return
			}
		}
	}
}

func (c *client) write(msg *Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (s *Server) register(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, c)
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// broadcast queues msg for every client and returns without waiting for
// the writes. Clients whose queue is full are disconnected.
func (s *Server) broadcast(msg *Message) {
	s.clientsMu.RLock()
	var failed []*client
	for c := range s.clients {
		if !c.enqueue(msg) {
			failed = append(failed, c)
		}
	}
	s.clientsMu.RUnlock()

	for _, c := range failed {
		hce.Debugf("control: dropping client %s: send queue full", c.id)
		s.unregister(c)
		c.close()
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
}

// handleWebSocket upgrades the connection, greets the client with the
// current content and then answers its requests until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hce.Debugf("control: websocket upgrade: %v", err)
		return
	}

	c := newClient(conn)
	current, version := s.store.Current()
	// Queue the greeting before registering so it is always the first
	// message; broadcasts older than it are dropped by writePump.
	c.enqueue(&Message{Type: MessageHello, ClientID: c.id, Content: NewContentView(current), Version: version})
	s.register(c)
	go c.writePump()
	hce.Debugf("control: client %s connected from %s", c.id, r.RemoteAddr)
	defer func() {
		s.unregister(c)
		c.close()
		hce.Debugf("control: client %s disconnected", c.id)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			if !c.enqueue(&Message{Type: MessageError, Error: "invalid message format"}) {
				return
			}
			continue
		}
		if !c.enqueue(s.handleRequest(&req)) {
			return
		}
	}
}

// handleRequest applies one WebSocket request and builds its response.
func (s *Server) handleRequest(req *Request) *Message {
	switch req.Type {
	case RequestSetURL:
		s.store.SetURL(req.Value)
	case RequestAddURL:
		s.store.AddURL(req.Value)
	case RequestSetVCard:
		s.store.SetVCard(req.Value)
	case RequestClear:
		s.store.Clear()
	case RequestGet:
	default:
		return &Message{ID: req.ID, Type: MessageError, Error: fmt.Sprintf("unknown request type %q", req.Type)}
	}
	current, version := s.store.Current()
	return &Message{ID: req.ID, Type: MessageContent, Content: NewContentView(current), Version: version}
}

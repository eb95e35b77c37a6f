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

// Package control lets other programs change what the emulated tag
// serves. It exposes the content store over HTTP and WebSocket and can
// advertise itself with mDNS.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/ZaparooProject/go-hce"
	"github.com/ZaparooProject/go-hce/content"
	"github.com/ZaparooProject/go-hce/internal/syncutil"
)

// mDNS service registration
const (
	MDNSServiceType = "_hce-tag._tcp"
	MDNSDomain      = "local."
	DefaultInstance = "go-hce"
)

const (
	maxBodySize = 64 << 10
	writeWait   = 5 * time.Second
	sendBuffer  = 32
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("control server already started")

// Config configures the control server
type Config struct {
	// Store receives updates; nil means content.Default().
	Store *content.Store
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// InstanceName is the mDNS instance name; empty means DefaultInstance.
	InstanceName string
	// MDNS enables the _hce-tag._tcp advertisement.
	MDNS bool
}

// Server serves the content API.
type Server struct {
	config     Config
	store      *content.Store
	mux        *http.ServeMux
	httpServer *http.Server
	mdns       *zeroconf.Server
	listener   net.Listener
	clients    map[*client]struct{}
	unwatch    func()
	upgrader   websocket.Upgrader
	mu         syncutil.Mutex
	clientsMu  syncutil.RWMutex
}

// New creates a server. Content changes are broadcast to WebSocket clients
// from the moment New returns until Shutdown.
func New(cfg Config) *Server {
	if cfg.Store == nil {
		cfg.Store = content.Default()
	}
	if cfg.InstanceName == "" {
		cfg.InstanceName = DefaultInstance
	}

	s := &Server{
		config:  cfg,
		store:   cfg.Store,
		mux:     http.NewServeMux(),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	s.unwatch = s.store.Watch(func(c content.Content, version uint64) {
		s.broadcast(&Message{Type: MessageContentChanged, Content: NewContentView(c), Version: version})
	})
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/content", s.handleGetContent)
	s.mux.HandleFunc("PUT /api/content", s.handlePutContent)
	s.mux.HandleFunc("DELETE /api/content", s.handleDeleteContent)
	s.mux.HandleFunc("POST /api/content/urls", s.handleAddURL)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the HTTP handler with every route.
func (s *Server) Handler() http.Handler {
	return enableCORS(s.mux)
}

// Start listens on the configured address and serves in the background.
// The server shuts down when ctx ends. A failed mDNS registration is logged
// and does not stop the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.httpServer
	go func() {
		hce.Debugf("control: serving on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hce.Debugf("control: HTTP server error: %v", err)
		}
	}()

	if s.config.MDNS {
		if err := s.startMDNS(ln.Addr()); err != nil {
			hce.Debugf("control: mDNS unavailable: %v", err)
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	return nil
}

// Addr returns the address the server listens on, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) startMDNS(addr net.Addr) error {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unexpected listener address %s", addr)
	}
	txt := []string{
		"version=1.0",
		"path=/ws",
		"api=/api/content",
	}
	server, err := zeroconf.Register(s.config.InstanceName, MDNSServiceType, MDNSDomain, tcp.Port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	s.mdns = server
	hce.Debugf("control: mDNS service %s registered on port %d", s.config.InstanceName, tcp.Port)
	return nil
}

// Shutdown stops mDNS, disconnects WebSocket clients and stops the HTTP
// server. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.mdns = nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.closeClients()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	return nil
}

// enableCORS adds CORS headers so browser tools can drive the API.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

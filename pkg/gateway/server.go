// Package gateway is the inbound websocket listener for server-mode
// accounts. It implements the socket route registration contract the
// adapter core expects.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erisforge/onebridge/pkg/adapter"
	"github.com/erisforge/onebridge/pkg/config"
	"github.com/erisforge/onebridge/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (auth is via token)
	},
}

type Server struct {
	config     config.GatewayConfig
	mux        *http.ServeMux
	httpServer *http.Server

	mu     sync.Mutex
	routes map[string]string // path -> account name
}

func NewServer(cfg config.GatewayConfig) *Server {
	return &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		routes: make(map[string]string),
	}
}

// RegisterSocketRoute wires one inbound endpoint. The auth handler runs
// after the upgrade; a rejected peer gets a policy-violation close before
// any frame is processed and no event is ever emitted for it.
func (s *Server) RegisterSocketRoute(name, path string, handler adapter.ConnHandler, auth adapter.AuthHandler) {
	s.mu.Lock()
	if owner, exists := s.routes[path]; exists {
		s.mu.Unlock()
		logger.ErrorCF("gateway", "Route path already registered, skipping", map[string]interface{}{
			"path":     path,
			"owner":    owner,
			"rejected": name,
		})
		return
	}
	s.routes[path] = name
	s.mu.Unlock()

	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.ErrorCF("gateway", "WebSocket upgrade failed", map[string]interface{}{
				"account": name,
				"error":   err.Error(),
			})
			return
		}

		if auth != nil && !auth(r) {
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
				deadline)
			conn.Close()
			return
		}

		handler(conn)
	})
}

// Start begins serving registered routes. It returns once the listener is
// bound; serving continues in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.mux,
		ReadTimeout: 0, // websocket connections are long-lived
		IdleTimeout: 0,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go func() {
		logger.InfoCF("gateway", "Gateway listening", map[string]interface{}{
			"address": addr,
		})
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("gateway", "Gateway server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
		logger.InfoC("gateway", "Gateway stopped")
	}
}

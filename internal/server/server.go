package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/framesync/internal/core/config"
	"github.com/zeusync/framesync/internal/core/engine"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/pkg/generic"
)

// frames holds the encode buffers shared by every broadcast.
var frames = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// StatsSource is what the server reports on. *engine.Engine satisfies it.
type StatsSource interface {
	Stats() engine.Stats
}

// Server publishes engine stats: a JSON snapshot on /stats and a periodic
// push to every websocket subscriber on /ws.
type Server struct {
	cfg    config.TelemetryConfig
	source StatsSource
	logger log.Log

	upgrader websocket.Upgrader
	http     *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	running atomic.Bool
	sent    atomic.Uint64
	done    chan struct{}
}

func New(cfg config.TelemetryConfig, source StatsSource, logger log.Log) (*Server, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{
		cfg:    cfg,
		source: source,
		logger: logger.Named("telemetry"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]struct{}),
		done:    make(chan struct{}),
	}
	return s, nil
}

// Start listens on the configured address and begins broadcasting.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("telemetry server failed", log.Error(err))
		}
	}()
	go s.broadcastLoop(ctx)

	s.logger.Info("telemetry listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Stop closes every subscriber and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	close(s.done)

	s.mu.Lock()
	for conn := range s.clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		delete(s.clients, conn)
	}
	s.mu.Unlock()

	return s.http.Shutdown(ctx)
}

// Sent counts stats frames written to subscribers.
func (s *Server) Sent() uint64 { return s.sent.Load() }

// Clients is the number of connected subscribers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Broadcast()
		}
	}
}

// Broadcast writes one snapshot to every subscriber, dropping any that fail.
func (s *Server) Broadcast() {
	buf := frames.Get()
	defer frames.Put(buf)
	if err := json.NewEncoder(buf).Encode(s.source.Stats()); err != nil {
		s.logger.Warn("encode stats", log.Error(err))
		return
	}
	msg, err := websocket.NewPreparedMessage(websocket.TextMessage, buf.Bytes())
	if err != nil {
		s.logger.Warn("prepare stats", log.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Interval))
		if err := conn.WritePreparedMessage(msg); err != nil {
			s.logger.Debug("dropping subscriber", log.String("remote", conn.RemoteAddr().String()), log.Error(err))
			_ = conn.Close()
			delete(s.clients, conn)
			continue
		}
		s.sent.Add(1)
	}
}

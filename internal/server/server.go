// Package server implements the Supervisor: it owns the listening
// socket, the accept loop, and the shutdown sequence that drains every
// session before the process exits.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/tttserver/internal/client"
	"github.com/udisondev/tttserver/internal/config"
	"github.com/udisondev/tttserver/internal/player"
	"github.com/udisondev/tttserver/internal/registry"
	"github.com/udisondev/tttserver/internal/session"
)

// Supervisor accepts connections, spawns a session per connection, and
// coordinates graceful shutdown across the Client and Player registries.
type Supervisor struct {
	cfg     config.Server
	clients *registry.Registry
	players *player.Registry

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Supervisor backed by freshly created registries.
func New(cfg config.Server) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		clients: registry.New(cfg.MaxClients),
		players: player.NewRegistry(),
	}
}

// Addr returns the bound address, or nil before Run starts listening.
func (s *Supervisor) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run binds the configured address and serves until ctx is cancelled,
// then runs the shutdown sequence before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections on an already-bound listener. Exposed
// separately so tests can supply an arbitrary listener.
func (s *Supervisor) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	err := g.Wait()

	slog.Info("shutting down: half-closing all client connections")
	s.clients.ShutdownAll()
	s.clients.WaitForEmpty()
	s.players.Finalize()
	slog.Info("shutdown complete")

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (s *Supervisor) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConnection(conn)
	}
}

func (s *Supervisor) handleConnection(conn net.Conn) {
	cc, ok := conn.(client.Conn)
	if !ok {
		slog.Error("connection type does not support half-close", "remote", conn.RemoteAddr())
		conn.Close()
		return
	}

	c := client.New(cc, s.cfg.WriteQueueSize, s.cfg.WriteTimeoutDuration())
	if err := s.clients.Register(c); err != nil {
		slog.Warn("connection rejected: registry full", "remote", conn.RemoteAddr())
		conn.Close()
		return
	}

	go c.Run()
	session.Loop(c, s.clients, s.players)
}

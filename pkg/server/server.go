// Package server runs the osmplot MCP server over stdio or HTTP+SSE.
package server

import (
	"context"
	"io"
	"log/slog"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmplot/pkg/tools"
)

// ServerName is the name of the MCP server
const ServerName = "osmplot"

// Server encapsulates the MCP server with the map tools registered.
type Server struct {
	srv      *mcpserver.MCPServer
	registry *tools.Registry
	logger   *slog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	mu      sync.Mutex
	once    sync.Once
}

// NewServer creates an MCP server exposing every tool in registry.
func NewServer(registry *tools.Registry, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing MCP server", "name", ServerName, "version", version)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterTools(srv)

	return &Server{
		srv:      srv,
		registry: registry,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run serves MCP over stdin/stdout until stdin closes or Shutdown is
// called.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		if err := mcpserver.ServeStdio(s.srv); err != nil && err != io.EOF {
			s.logger.Error("server error", "error", err)
		}
		s.Shutdown()
	}()

	<-s.stopCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	<-s.doneCh
	return nil
}

// RunWithContext is Run with shutdown on ctx cancellation.
func (s *Server) RunWithContext(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.stopCh:
		}
	}()
	return s.Run()
}

// Shutdown signals Run to return. It does not block and is safe to call
// more than once.
func (s *Server) Shutdown() {
	s.once.Do(func() {
		close(s.stopCh)
	})
}

// WaitForShutdown blocks until the stdio loop has exited.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// MCPServer returns the underlying MCP server for the HTTP transport
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Registry returns the tool registry
func (s *Server) Registry() *tools.Registry {
	return s.registry
}

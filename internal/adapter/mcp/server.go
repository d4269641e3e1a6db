// Package mcp exposes the review service over the Model Context
// Protocol, so agent frontends can start and follow reviews with the
// same semantics as the REST surface.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/redlinehq/redline/internal/domain/review"
)

// ReviewRunner is the slice of the review service the MCP surface needs.
type ReviewRunner interface {
	StartReview(ctx context.Context, req review.StartRequest) (*review.Job, error)
	GetJob(ctx context.Context, id string) (*review.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*review.Job, error)
	GetResult(ctx context.Context, id string) (*review.Result, error)
	Cancel(ctx context.Context, id string) error
}

// ServerConfig configures the MCP listener.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	// APIKey enables bearer auth on the listener when set.
	APIKey string
}

// ServerDeps are the backends the tools and resources call into.
type ServerDeps struct {
	Reviews ReviewRunner
}

// Server hosts the MCP tools and resources over streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates the MCP server and registers all tools and
// resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying protocol server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving on the configured address. It returns
// immediately; serve errors are logged.
func (s *Server) Start() error {
	handler := AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: handler}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "addr", s.cfg.Addr, "error", err)
		}
	}()

	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

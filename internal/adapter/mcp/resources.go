package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const recentReviewsLimit = 50

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"redline://reviews",
			"Recent Reviews",
			mcplib.WithResourceDescription("Recent review jobs, most recent first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleReviewsResource,
	)
}

// jsonResource wraps a JSON payload in the single-document shape MCP
// resource reads expect.
func jsonResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}

func (s *Server) handleReviewsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Reviews == nil {
		return jsonResource(req.Params.URI, `{"error":"review service not configured"}`), nil
	}

	jobs, err := s.deps.Reviews.ListJobs(ctx, recentReviewsLimit)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

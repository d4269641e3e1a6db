package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/redlinehq/redline/internal/domain/review"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.startReviewTool(),
		s.getReviewTool(),
		s.getResultTool(),
		s.cancelReviewTool(),
	)
}

func (s *Server) startReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("start_review",
		mcplib.WithDescription("Start a manuscript review. Pass either the ID of a stored document or an inline document object."),
		mcplib.WithString("document_id",
			mcplib.Description("ID of a previously stored document"),
		),
		mcplib.WithObject("document",
			mcplib.Description("Inline document with title and paragraphs"),
		),
		mcplib.WithObject("config",
			mcplib.Description("Review configuration (focus dimensions, domain and panel toggles)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleStartReview,
	}
}

func (s *Server) getReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_review",
		mcplib.WithDescription("Get the status of a review, including per-agent states"),
		mcplib.WithString("job_id",
			mcplib.Required(),
			mcplib.Description("The review job ID"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetReview,
	}
}

func (s *Server) getResultTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_result",
		mcplib.WithDescription("Get the synthesized result of a finished review"),
		mcplib.WithString("job_id",
			mcplib.Required(),
			mcplib.Description("The review job ID"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetResult,
	}
}

func (s *Server) cancelReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cancel_review",
		mcplib.WithDescription("Request cancellation of a running review"),
		mcplib.WithString("job_id",
			mcplib.Required(),
			mcplib.Description("The review job ID"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCancelReview,
	}
}

func (s *Server) handleStartReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	// The tool arguments mirror the REST start request field for field.
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var start review.StartRequest
	if err := json.Unmarshal(raw, &start); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	job, err := s.deps.Reviews.StartReview(ctx, start)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start review", err), nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal job", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	jobID, ok := req.GetArguments()["job_id"].(string)
	if !ok || jobID == "" {
		return mcplib.NewToolResultError("job_id is required"), nil
	}
	job, err := s.deps.Reviews.GetJob(ctx, jobID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get review %s", jobID), err,
		), nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal job", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetResult(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	jobID, ok := req.GetArguments()["job_id"].(string)
	if !ok || jobID == "" {
		return mcplib.NewToolResultError("job_id is required"), nil
	}
	res, err := s.deps.Reviews.GetResult(ctx, jobID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get result of %s", jobID), err,
		), nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleCancelReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review service not configured"), nil
	}
	jobID, ok := req.GetArguments()["job_id"].(string)
	if !ok || jobID == "" {
		return mcplib.NewToolResultError("job_id is required"), nil
	}
	if err := s.deps.Reviews.Cancel(ctx, jobID); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to cancel review %s", jobID), err,
		), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf(`{"job_id":%q,"status":"cancelling"}`, jobID)), nil
}

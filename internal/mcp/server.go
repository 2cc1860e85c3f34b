// Package mcp exposes the review pipeline as MCP tools so AI assistants can
// start consensus reviews and inspect their history over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/quorum/internal/ai"
	"github.com/joescharf/quorum/internal/progress"
	"github.com/joescharf/quorum/internal/review"
	"github.com/joescharf/quorum/internal/store"
)

// Server wraps the review service and exposes it as MCP tools.
type Server struct {
	store store.Store
	svc   *review.Service
	cfg   review.Config

	mu     sync.Mutex
	active map[string]*progress.Channel
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(svc *review.Service, st store.Store, cfg review.Config) *Server {
	return &Server{
		store:  st,
		svc:    svc,
		cfg:    cfg,
		active: make(map[string]*progress.Channel),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("quorum", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.reviewRunTool())
	srv.AddTool(s.reviewStatusTool())
	srv.AddTool(s.reviewProgressTool())
	srv.AddTool(s.reviewSessionsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// review_run
func (s *Server) reviewRunTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_run",
		mcp.WithDescription("Run a multi-AI consensus code review of the changes between two git refs. Blocks until the session terminates and returns a JSON summary with the session id, outcome, and final review."),
		mcp.WithString("base_ref", mcp.Required(), mcp.Description("Base git ref to diff against (e.g. main)")),
		mcp.WithString("target_ref", mcp.Description("Target git ref (default HEAD)")),
		mcp.WithString("repo_path", mcp.Description("Repository path (default current directory)")),
		mcp.WithString("lead", mcp.Required(), mcp.Description("Lead model spec (e.g. claude, anthropic:<model>, name=cmd args)")),
		mcp.WithString("peers", mcp.Description("Comma-separated peer model specs")),
		mcp.WithNumber("max_rounds", mcp.Description("Maximum consensus rounds")),
		mcp.WithNumber("token_budget", mcp.Description("Token budget for curated diff content")),
		mcp.WithString("context", mcp.Description("Extra reviewer context appended to the initial draft prompt")),
	)
	return tool, s.handleReviewRun
}

func (s *Server) handleReviewRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseRef, err := request.RequireString("base_ref")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: base_ref"), nil
	}
	leadSpec, err := request.RequireString("lead")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: lead"), nil
	}

	lead, err := ai.Resolve(leadSpec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid lead spec: %v", err)), nil
	}
	var peers []ai.Model
	for _, spec := range splitCSV(request.GetString("peers", "")) {
		m, err := ai.Resolve(spec)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid peer spec %q: %v", spec, err)), nil
		}
		peers = append(peers, m)
	}

	cfg := s.cfg
	if n := request.GetInt("max_rounds", 0); n > 0 {
		cfg.MaxRounds = n
	}
	if n := request.GetInt("token_budget", 0); n > 0 {
		cfg.TokenBudget = n
	}

	sessionID := store.NewULID()
	ch := progress.NewChannel()
	s.mu.Lock()
	s.active[sessionID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, sessionID)
		s.mu.Unlock()
	}()

	out, runErr := s.svc.Run(ctx, review.Options{
		SessionID:    sessionID,
		RepoPath:     request.GetString("repo_path", "."),
		BaseRef:      baseRef,
		TargetRef:    request.GetString("target_ref", "HEAD"),
		Lead:         lead,
		Peers:        peers,
		ExtraContext: request.GetString("context", ""),
		Config:       cfg,
		Progress:     ch,
	})
	if runErr != nil && out == nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", runErr)), nil
	}

	result := map[string]any{
		"session_id":        out.Result.SessionID,
		"consensus_reached": out.Result.ConsensusReached,
		"rounds_completed":  out.Result.RoundsCompleted,
		"final_responders":  out.Result.FinalResponders,
		"final_silent":      out.Result.FinalSilent,
		"skipped_files":     out.Result.Diagnostics.SkippedFiles,
		"failed_peers":      out.Result.Diagnostics.FailedPeers,
		"report_path":       out.ReportPath,
		"final_review":      out.Result.FinalText,
	}
	if runErr != nil {
		result["error"] = runErr.Error()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// review_status
func (s *Server) reviewStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_status",
		mcp.WithDescription("Get the state, participants, and outcome of a review session by id. Returns JSON."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleReviewStatus
}

func (s *Server) handleReviewStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	submissions := 0
	for _, subs := range sess.Submissions {
		submissions += len(subs)
	}

	result := map[string]any{
		"session_id":        sess.ID,
		"base_ref":          sess.BaseRef,
		"target_ref":        sess.TargetRef,
		"lead":              sess.Lead,
		"peers":             sess.Peers,
		"state":             string(sess.State),
		"round":             sess.Round,
		"max_rounds":        sess.MaxRounds,
		"consensus_reached": sess.ConsensusReached,
		"submissions":       submissions,
		"created_at":        sess.CreatedAt.Format(time.RFC3339),
	}
	if sess.CompletedAt != nil {
		result["completed_at"] = sess.CompletedAt.Format(time.RFC3339)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// review_progress
func (s *Server) reviewProgressTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_progress",
		mcp.WithDescription("Poll progress updates for a running review session. Returns a JSON array of participant status messages newer than the given timestamp."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id of a running review")),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp; only updates strictly after it are returned")),
	)
	return tool, s.handleReviewProgress
}

func (s *Server) handleReviewProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	s.mu.Lock()
	ch := s.active[sessionID]
	s.mu.Unlock()
	if ch == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no running session: %s", sessionID)), nil
	}

	var since time.Time
	if raw := request.GetString("since", ""); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %v", err)), nil
		}
	}

	type updateOut struct {
		Participant string `json:"participant"`
		Message     string `json:"message"`
		Timestamp   string `json:"timestamp"`
	}
	updates := ch.Poll(since)
	out := make([]updateOut, len(updates))
	for i, u := range updates {
		out[i] = updateOut{
			Participant: u.Participant,
			Message:     u.Message,
			Timestamp:   u.Timestamp.Format(time.RFC3339Nano),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal updates: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// review_sessions
func (s *Server) reviewSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_sessions",
		mcp.WithDescription("List past review sessions, newest first. Returns a JSON array with id, refs, participants, state, and outcome."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default 20)")),
	)
	return tool, s.handleReviewSessions
}

func (s *Server) handleReviewSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)

	sessions, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID               string   `json:"id"`
		BaseRef          string   `json:"base_ref"`
		TargetRef        string   `json:"target_ref"`
		Lead             string   `json:"lead"`
		Peers            []string `json:"peers"`
		State            string   `json:"state"`
		Round            int      `json:"round"`
		ConsensusReached bool     `json:"consensus_reached"`
		CreatedAt        string   `json:"created_at"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:               sess.ID,
			BaseRef:          sess.BaseRef,
			TargetRef:        sess.TargetRef,
			Lead:             sess.Lead,
			Peers:            sess.Peers,
			State:            string(sess.State),
			Round:            sess.Round,
			ConsensusReached: sess.ConsensusReached,
			CreatedAt:        sess.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

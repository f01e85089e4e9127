package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/iedash/internal/dashboard"
	"github.com/kalambet/iedash/internal/storage"
)

const defaultAskTimeout = 30 * time.Second

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Dashboard  *dashboard.Service
	AskTimeout time.Duration // how long ask waits for the pipeline; default 30s
}

// NewMCPServer creates an MCP server with the dashboard tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"iedash",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("iedash: knowledge assistant dashboard. Ask questions, browse documents and manage agents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the knowledge assistant a question and wait for its answer."),
			mcp.WithString("query", mcp.Description("The question"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List knowledge base documents, optionally filtered."),
			mcp.WithString("category", mcp.Description("Exact category, e.g. HR")),
			mcp.WithString("status", mcp.Description("processing or processed")),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_agent",
			mcp.WithDescription("Enable a disabled agent or disable an enabled one."),
			mcp.WithString("id", mcp.Description("Agent id, e.g. hr-agent"), mcp.Required()),
		),
		mcpToggleAgent(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"dashboard://stats",
			"System Stats",
			mcp.WithResourceDescription("Dashboard counters as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() (any, error) { return deps.Dashboard.Stats() }),
	)

	s.AddResource(
		mcp.NewResource(
			"dashboard://activity",
			"Recent Activity",
			mcp.WithResourceDescription("Most recent activity entries, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() (any, error) { return deps.Dashboard.Activity(), nil }),
	)

	s.AddResource(
		mcp.NewResource(
			"dashboard://monitor",
			"Agent Monitor",
			mcp.WithResourceDescription("Pipeline status and phase progress"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJSON(func() (any, error) { return deps.Dashboard.Monitor() }),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		timeout := deps.AskTimeout
		if timeout <= 0 {
			timeout = defaultAskTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		answer, err := deps.Dashboard.Ask(ctx, query)
		switch {
		case errors.Is(err, dashboard.ErrBusy):
			return mcpError("the assistant is busy with another query, try again shortly"), nil
		case errors.Is(err, dashboard.ErrInvalidInput):
			return mcpError("query must not be blank"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Dashboard.Documents(req.GetString("category", ""), req.GetString("status", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}

		type docSummary struct {
			ID       string   `json:"id"`
			Name     string   `json:"name"`
			Type     string   `json:"type"`
			Category string   `json:"category"`
			Status   string   `json:"status"`
			Tags     []string `json:"tags"`
		}
		out := make([]docSummary, len(docs))
		for i, d := range docs {
			out[i] = docSummary{ID: d.ID, Name: d.Name, Type: d.Type, Category: d.Category, Status: d.Status, Tags: d.Tags}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpToggleAgent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		a, err := deps.Dashboard.ToggleAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("agent %q not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("toggle failed: %v", err)), nil
		}

		state := "disabled"
		if a.Enabled {
			state = "enabled"
		}
		return mcpText(fmt.Sprintf("%s is now %s", a.Name, state)), nil
	}
}

func mcpResourceJSON(load func() (any, error)) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		v, err := load()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", req.Params.URI, err)
		}

		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", req.Params.URI, err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

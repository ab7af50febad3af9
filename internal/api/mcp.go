package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runner Runner
}

// NewMCPServer creates an MCP server exposing the briefing tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"daybrief",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("daybrief — morning briefing with weather, calendar and a spoken-friendly summary."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("morning_briefing",
			mcp.WithDescription("Generate the morning briefing: today's weather, today's events, and a narrative summary ready to read aloud."),
			mcp.WithBoolean("full", mcp.Description("Return the full briefing as JSON instead of just the narrative text")),
		),
		mcpMorningBriefing(deps),
	)

	return s
}

func mcpMorningBriefing(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := deps.Runner.Run(ctx)

		if req.GetBool("full", false) {
			b, err := json.Marshal(result)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal briefing: %v", err)), nil
			}
			return mcpText(string(b)), nil
		}

		return mcpText(result.Narrative), nil
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

// Package mcp exposes the diagnosis dialogue as MCP tools and prompts.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/mcp/tools"
)

// Tool defines the interface for our tool implementations
type Tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

// SleuthServer wraps mcp-go server with the diagnosis tools
type SleuthServer struct {
	mcpServer *server.MCPServer
	diagnoser tools.Diagnoser
	tools     map[string]Tool
	version   string
	logger    *logging.Logger
}

// NewServer creates a new MCP server backed by diagnoser.
func NewServer(diagnoser tools.Diagnoser, version string) *SleuthServer {
	mcpServer := server.NewMCPServer(
		"Sleuth MCP Server",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &SleuthServer{
		mcpServer: mcpServer,
		diagnoser: diagnoser,
		tools:     make(map[string]Tool),
		version:   version,
		logger:    logging.GetLogger("mcp"),
	}

	s.registerTools()
	s.registerPrompts()

	return s
}

func (s *SleuthServer) registerTools() {
	s.registerTool(
		"start_diagnosis",
		"Open a diagnosis session for a problem description and return the first recommended action",
		tools.NewStartDiagnosisTool(s.diagnoser),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"problem": map[string]interface{}{
					"type":        "string",
					"description": "Free-text description of the symptoms",
				},
			},
			"required": []string{"problem"},
		},
	)

	s.registerTool(
		"report_observation",
		"Report the result of a check or a new observation for a session and return the next action",
		tools.NewReportObservationTool(s.diagnoser),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id returned by start_diagnosis",
				},
				"observation": map[string]interface{}{
					"type":        "string",
					"description": "What was observed, in plain language",
				},
			},
			"required": []string{"session_id", "observation"},
		},
	)

	s.registerTool(
		"get_session",
		"Get the confirmed facts, hypotheses and executed steps of a session",
		tools.NewGetSessionTool(s.diagnoser),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id",
				},
				"include_transcript": map[string]interface{}{
					"type":        "boolean",
					"description": "Optional: include the full dialogue transcript (default: false)",
				},
			},
			"required": []string{"session_id"},
		},
	)

	s.registerTool(
		"search_steps",
		"Search the diagnostic step catalog by similarity to a query",
		tools.NewSearchStepsTool(s.diagnoser),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Symptom or observation to search for",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Optional: max steps to return (default 10, max 50)",
				},
			},
			"required": []string{"query"},
		},
	)
}

func (s *SleuthServer) registerTool(name, description string, tool Tool, inputSchema map[string]interface{}) {
	s.tools[name] = tool

	schemaJSON, err := json.Marshal(inputSchema)
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal schema for tool %s: %v", name, err))
	}

	mcpTool := mcp.NewToolWithRawSchema(name, description, schemaJSON)
	s.mcpServer.AddTool(mcpTool, s.createToolHandler(name, tool))
}

func (s *SleuthServer) createToolHandler(name string, tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			s.logger.WithContext(ctx).Debug("Tool %s failed: %v", name, err)
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
		}

		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func (s *SleuthServer) registerPrompts() {
	diagnosePrompt := mcp.Prompt{
		Name:        "guided_diagnosis",
		Description: "Walk through a guided diagnosis of a production problem",
		Arguments: []mcp.PromptArgument{
			{Name: "problem", Description: "Description of the symptoms", Required: true},
			{Name: "system", Description: "Optional name of the affected system", Required: false},
		},
	}

	s.mcpServer.AddPrompt(diagnosePrompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		problem := request.Params.Arguments["problem"]
		system := request.Params.Arguments["system"]

		text := fmt.Sprintf("Diagnose the following problem: %s.", problem)
		if system != "" {
			text += fmt.Sprintf(" The affected system is %s.", system)
		}
		text += " Call start_diagnosis first. Carry out each recommended check and report what you saw with report_observation" +
			" until a root cause is confirmed. Use get_session to review the current hypotheses."

		return &mcp.GetPromptResult{
			Description: "Guided diagnosis workflow",
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.TextContent{
						Type: "text",
						Text: text,
					},
				},
			},
		}, nil
	})
}

// MCPServer returns the underlying mcp-go server for transport setup
func (s *SleuthServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ToolNames returns the registered tool names.
func (s *SleuthServer) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

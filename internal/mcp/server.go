package mcp

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/xmmarcotte/marcotte-dev/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "spot"
)

// ServerVersion is the version reported to clients. It is set by the CLI.
var ServerVersion = "dev"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	engine   *engine.Engine
	tools    []mcp.Tool
	schemas  map[string]*gojsonschema.Schema
	handlers map[string]server.ToolHandlerFunc
	log      zerolog.Logger
}

// NewServer creates a new MCP server instance over an engine
func NewServer(e *engine.Engine, log *zerolog.Logger) (*Server, error) {
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("component", "mcp").Logger()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		engine:   e,
		schemas:  make(map[string]*gojsonschema.Schema),
		handlers: make(map[string]server.ToolHandlerFunc),
		log:      l,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin
// closes
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the MCP protocol over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info().Int("tools", len(s.tools)).Msg("serving MCP on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// Tools returns the registered tool definitions
func (s *Server) Tools() []mcp.Tool {
	return s.tools
}

type toolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	for _, t := range []struct {
		tool    mcp.Tool
		handler toolHandler
	}{
		{searchTool(), s.handleSearch},
		{storeTool(), s.handleStore},
		{indexTool(), s.handleIndex},
		{updateTool(), s.handleUpdate},
		{statusTool(), s.handleStatus},
		{listWorkspacesTool(), s.handleListWorkspaces},
		{forgetTool(), s.handleForget},
	} {
		schema, err := compileSchema(t.tool)
		if err != nil {
			return fmt.Errorf("schema for %s: %w", t.tool.Name, err)
		}
		s.schemas[t.tool.Name] = schema
		h := s.wrap(t.tool.Name, t.handler)
		s.tools = append(s.tools, t.tool)
		s.handlers[t.tool.Name] = h
		s.mcp.AddTool(t.tool, h)
	}
	return nil
}

// compileSchema turns a tool's input schema into a validator. Unknown
// arguments are rejected.
func compileSchema(t mcp.Tool) (*gojsonschema.Schema, error) {
	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           t.InputSchema.Properties,
	}
	if len(t.InputSchema.Required) > 0 {
		schemaMap["required"] = t.InputSchema.Required
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// wrap validates arguments, runs the handler and renders its result or
// error as a tool result.
func (s *Server) wrap(name string, h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := s.call(ctx, name, request.Params.Arguments, h)
		if err != nil {
			mcpErr := toMCPError(err)
			s.log.Warn().Str("tool", name).Int("code", mcpErr.Code).Str("error", mcpErr.Message).Msg("tool call failed")
			return mcp.NewToolResultError(formatJSON(mcpErr.payload())), nil
		}
		return mcp.NewToolResultText(formatJSON(res)), nil
	}
}

func (s *Server) call(ctx context.Context, name string, raw interface{}, h toolHandler) (interface{}, error) {
	args, err := arguments(raw)
	if err != nil {
		return nil, err
	}
	if err := validateArguments(s.schemas[name], args); err != nil {
		return nil, err
	}
	return h(ctx, args)
}

// Package mcpserver exposes index queries as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/lineage"
)

// Tool names.
const (
	ToolClassChain = "class_chain"
	ToolFiles      = "indexed_files"
	ToolPending    = "pending_parents"
)

// Querier is the read side the tools answer from. *lineage.QueryBuilder
// satisfies it.
type Querier interface {
	Chain(ctx context.Context, file string) (map[string]*lineage.ClassInfo, error)
	Files(ctx context.Context) ([]string, error)
	Pending(ctx context.Context) ([]*lineage.Class, error)
}

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp     *mcp.Server
	q       Querier
	logger  *slog.Logger
	onQuery func(ctx context.Context)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithQueryHook calls fn after every successful class_chain call.
func WithQueryHook(fn func(ctx context.Context)) Option {
	return func(s *Server) {
		s.onQuery = fn
	}
}

// New creates a Server with all tools registered.
func New(q Querier, version string, opts ...Option) *Server {
	s := &Server{
		q:      q,
		logger: slog.Default(),
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "lineage",
				Version: version,
			},
			nil,
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp.serving", "transport", "stdio")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        ToolClassChain,
		Description: "Return every class defined in a TypeScript file, keyed by class name, with its tags, its methods and their tags, and its ancestor chain (nearest ancestor first). A file with no classes, or one that was never indexed, yields {}.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file": {
					"type": "string",
					"description": "Absolute path of the file, or its root-relative index key (e.g. 'roles/harvester')"
				}
			},
			"required": ["file"]
		}`),
	}, s.handleClassChain)

	s.mcp.AddTool(&mcp.Tool{
		Name:        ToolFiles,
		Description: "List the index keys of every indexed file.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleFiles)

	s.mcp.AddTool(&mcp.Tool{
		Name:        ToolPending,
		Description: "List classes whose parent has not been found yet, with the parent name and file they are waiting for.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handlePending)
}

type classChainArgs struct {
	File string `json:"file"`
}

type pendingClass struct {
	File           string `json:"file"`
	Name           string `json:"name"`
	ExpectedParent string `json:"expectedParent"`
	ExpectedFile   string `json:"expectedFile,omitempty"`
}

func (s *Server) handleClassChain(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args classChainArgs
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errResult("invalid arguments: " + err.Error()), nil
		}
	}
	if args.File == "" {
		return errResult("file is required"), nil
	}
	out, err := s.q.Chain(ctx, args.File)
	if err != nil {
		s.logger.Warn("mcp.chain_failed", "file", args.File, "err", err)
		return errResult(err.Error()), nil
	}
	if s.onQuery != nil {
		s.onQuery(ctx)
	}
	return jsonResult(out), nil
}

func (s *Server) handleFiles(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.q.Files(ctx)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if files == nil {
		files = []string{}
	}
	return jsonResult(files), nil
}

func (s *Server) handlePending(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	classes, err := s.q.Pending(ctx)
	if err != nil {
		return errResult(err.Error()), nil
	}
	out := make([]pendingClass, 0, len(classes))
	for _, c := range classes {
		p := pendingClass{File: c.File, Name: c.Name}
		if c.ExpectedParent != nil {
			p.ExpectedParent = *c.ExpectedParent
		}
		if c.ExpectedParentFile != nil {
			p.ExpectedFile = *c.ExpectedParentFile
		}
		out = append(out, p)
	}
	return jsonResult(out), nil
}

func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

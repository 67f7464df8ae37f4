// Package mcpserver serves a ToolBox over the Model Context Protocol so that
// MCP clients can drive the device.
package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/scottmckenzie/dlink-smart-plug/pkg/tools/toolbox"
)

// MCPServer serves tools over MCP using the official MCP Go SDK.
type MCPServer struct {
	server *mcp.Server
	log    *slog.Logger
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithLogger logs every tool call. The default discards all output.
func WithLogger(log *slog.Logger) Option {
	return func(s *MCPServer) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates an MCPServer that identifies itself with name and version.
func New(name, version string, opts ...Option) *MCPServer {
	s := &MCPServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version,
		}, nil),
		log: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds every tool in tb. Calls are dispatched through tb.Call.
func (s *MCPServer) Register(tb *toolbox.ToolBox) {
	for _, t := range tb.Tools() {
		s.server.AddTool(toSDKTool(t), s.toSDKHandler(tb, t.Name))
	}
}

// Serve reads requests from in and writes responses to out until ctx is
// cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// toSDKHandler adapts the tool registered as name to the SDK. Failed calls
// become error results so the client sees the device failure instead of a
// protocol error.
func (s *MCPServer) toSDKHandler(tb *toolbox.ToolBox, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res := tb.Call(ctx, name, req.Params.Arguments)

		if res.IsError {
			s.log.WarnContext(ctx, "tool call failed", "tool", name, "duration", time.Since(start), "error", res.Content)
		} else {
			s.log.InfoContext(ctx, "tool call", "tool", name, "duration", time.Since(start))
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
			IsError: res.IsError,
		}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Package mcp serves hai's shell tool to Model Context Protocol clients.
//
// The server speaks over stdin and stdout, so there is no terminal to ask
// for confirmation: commands run only when they match allowed_commands or
// when the server was started with auto-confirmation.
package mcp

import (
	"context"

	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"
)

// Deny rejects every command that is not pre-approved.
var Deny = tools.ConfirmFunc(func(ctx context.Context, command string) (tools.Decision, error) {
	pslog.Ctx(ctx).Info("command not allowed over mcp", "command", command)
	return tools.DecisionNo, nil
})

// Server exposes one shell tool.
type Server struct {
	shell   *tools.ShellTool
	version string
}

// NewServer returns a server for shell. The shell's gate decides which
// commands run; build it with Deny as confirmer.
func NewServer(shell *tools.ShellTool, version string) *Server {
	return &Server{shell: shell, version: version}
}

func (s *Server) build() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "hai", Version: s.version}, nil)
	properties, required := tools.Schema(s.shell)
	mcp.AddTool(server, &mcp.Tool{
		Name:        s.shell.Name(),
		Description: s.shell.Description(),
		InputSchema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}, s.call)
	return server
}

func (s *Server) call(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	outcome := s.shell.Call(ctx, args)
	pslog.Ctx(ctx).Debug("mcp tool call", "success", outcome.Success)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: outcome.JSON()}},
		IsError: !outcome.Success,
	}, nil, nil
}

// Run serves on stdin and stdout until the client disconnects or ctx is
// done.
func (s *Server) Run(ctx context.Context) error {
	pslog.Ctx(ctx).Info("serving mcp on stdio", "version", s.version)
	if err := s.build().Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return errors.Wrapf(err, "mcp server failed")
	}
	return nil
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	ss, err := s.build().Connect(ctx, t, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start mcp session")
	}
	return ss, nil
}

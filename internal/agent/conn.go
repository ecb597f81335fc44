package agent

import (
	"context"
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/crew/internal/config"
)

// mcpClient is the slice of the protocol client a live connection uses.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Conn is one live connection to a tool server.
type Conn struct {
	name      string
	transport string
	cli       mcpClient
}

// DialOptions carries per-dial settings that do not live in the server
// configuration.
type DialOptions struct {
	// NoInheritEnv keeps the parent environment away from stdio servers.
	NoInheritEnv bool
	// Token is a bearer token attached to sse/http requests when set.
	Token string
}

// Dial connects to the given tool server and performs the protocol
// handshake. The returned connection stays open until Close.
func Dial(ctx context.Context, srv config.ToolServer, opts DialOptions) (*Conn, error) {
	var cli *client.Client
	var err error

	switch srv.Type {
	case "", "stdio":
		env := srv.Env
		if !opts.NoInheritEnv {
			env = append(os.Environ(), srv.Env...)
		}
		cli, err = client.NewStdioMCPClient(
			srv.Command,
			env,
			srv.Args...,
		)
	case "sse":
		cli, err = client.NewSSEMCPClient(srv.URL, transport.WithHeaders(dialHeaders(srv, opts)))
	case "http":
		cli, err = client.NewStreamableHttpClient(srv.URL, transport.WithHTTPHeaders(dialHeaders(srv, opts)))
	default:
		return nil, fmt.Errorf("unsupported tool server type: %q, supported types are: stdio, sse, http", srv.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create client for %q: %w", srv.Name, err)
	}

	if err := cli.Start(ctx); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to start client for %q: %w", srv.Name, err)
	}

	if _, err := cli.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to initialize client for %q: %w", srv.Name, err)
	}

	return &Conn{name: srv.Name, transport: srv.Transport(), cli: cli}, nil
}

func dialHeaders(srv config.ToolServer, opts DialOptions) map[string]string {
	headers := maps.Clone(srv.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	// An Authorization header set in the configuration wins over the minted
	// credential.
	if _, ok := headers["Authorization"]; !ok && opts.Token != "" {
		headers["Authorization"] = "Bearer " + opts.Token
	}
	return headers
}

// Name returns the server name this connection talks to.
func (c *Conn) Name() string { return c.name }

// Transport returns the transport label: stdio, sse, or http.
func (c *Conn) Transport() string { return c.transport }

// Tools asks the server for its tools and wraps them for local use. Every
// wrapped tool calls back through this connection with the given time budget.
func (c *Conn) Tools(ctx context.Context, timeout time.Duration) ([]*Tool, error) {
	list, err := c.cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("could not list tools for %s: %w", c.name, err)
	}
	tools := make([]*Tool, 0, len(list.Tools))
	for _, t := range list.Tools {
		tools = append(tools, newTool(c, t, timeout))
	}
	return tools, nil
}

func (c *Conn) call(ctx context.Context, remoteName string, args map[string]any) (*mcp.CallToolResult, error) {
	request := mcp.CallToolRequest{}
	request.Params.Name = remoteName
	request.Params.Arguments = args
	return c.cli.CallTool(ctx, request)
}

// Close tears the connection down.
func (c *Conn) Close() error {
	return c.cli.Close()
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultCallTimeout bounds tool calls on servers that configure no timeout
// of their own.
const DefaultCallTimeout = 10 * time.Minute

type caller interface {
	call(ctx context.Context, remoteName string, args map[string]any) (*mcp.CallToolResult, error)
}

// Tool is a locally callable wrapper around one remote tool.
type Tool struct {
	// Name is the local compound name: <server>_<tool>.
	Name string
	// Server and Transport identify where calls end up.
	Server    string
	Transport string
	// Description is the remote description plus a provenance line. It is
	// final once the tool is built.
	Description string
	InputSchema mcp.ToolInputSchema
	Timeout     time.Duration

	remoteName string
	conn       caller
}

func newTool(c *Conn, t mcp.Tool, timeout time.Duration) *Tool {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Tool{
		Name:        c.name + "_" + t.Name,
		Server:      c.name,
		Transport:   c.transport,
		Description: DescribeRemote(t.Description, t.Name, c.name, c.transport),
		InputSchema: t.InputSchema,
		Timeout:     timeout,
		remoteName:  t.Name,
		conn:        c,
	}
}

// RemoteName returns the name the tool goes by on its server.
func (t *Tool) RemoteName() string { return t.remoteName }

// DescribeRemote appends a provenance line to a remote tool description,
// naming the remote tool, its server, and the transport in use. Applying it
// again changes nothing.
func DescribeRemote(desc, remote, server, transport string) string {
	suffix := fmt.Sprintf("Provided by the %q tool server over %s as %q.", server, transport, remote)
	if strings.HasSuffix(strings.TrimSpace(desc), suffix) {
		return desc
	}
	if strings.TrimSpace(desc) == "" {
		return suffix
	}
	return strings.TrimRight(desc, "\n") + "\n\n" + suffix
}

// Execute runs the tool with the given arguments.
//
// The call is bounded by the tool's time budget. A timed out call returns an
// error matching ErrCallTimeout and leaves the connection usable for later
// calls. Arguments go to the server as-is; validating them is the server's
// job.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := t.conn.call(ctx, t.remoteName, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %s gave no answer within %s", ErrCallTimeout, t.Name, timeout)
		}
		return Result{}, fmt.Errorf("call %s: %w", t.Name, err)
	}

	text := flatten(result.Content)
	if result.IsError {
		// The server explained what went wrong; pass its words through.
		return Result{}, errors.New(text)
	}
	return Result{Tool: t.Name, Text: text}, nil
}

func flatten(content []mcp.Content) string {
	var sb strings.Builder
	for _, item := range content {
		switch item := item.(type) {
		case mcp.TextContent:
			sb.WriteString(item.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}
	return sb.String()
}

// Result is the normalized outcome of a successful tool call.
type Result struct {
	Tool string
	Text string
}

func (r Result) render() string {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return fmt.Sprintf("%s returned no content.", r.Tool)
	}
	return text
}

// Display returns the result as shown to the operator.
func (r Result) Display() string { return r.render() }

// ForModel returns the result as handed back to the conversation. It is
// exactly the operator rendering; the two never diverge.
func (r Result) ForModel() string { return r.render() }

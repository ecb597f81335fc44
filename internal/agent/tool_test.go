package agent

import (
	"context"
	"testing"
	"time"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestExecuteTimeout(t *testing.T) {
	fc := &fakeClient{block: true}
	conn := fakeConn("github", "stdio", fc)
	tools, err := conn.Tools(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, tools)

	tool := newTool(conn, mcp.Tool{Name: "search"}, 50*time.Millisecond)
	_, err = tool.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrCallTimeout)
	require.ErrorContains(t, err, "github_search")

	// The connection survives a timed out call.
	fc.block = false
	res, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", res.Text)
}

func TestExecuteDefaultTimeout(t *testing.T) {
	conn := fakeConn("github", "stdio", &fakeClient{})
	tool := newTool(conn, mcp.Tool{Name: "search"}, 0)
	require.Equal(t, DefaultCallTimeout, tool.Timeout)
}

func TestExecuteToolError(t *testing.T) {
	conn := fakeConn("github", "stdio", &fakeClient{
		callRes: mcp.NewToolResultError("index out of range"),
	})
	tool := newTool(conn, mcp.Tool{Name: "search"}, time.Second)
	_, err := tool.Execute(context.Background(), nil)
	require.EqualError(t, err, "index out of range")
	require.NotErrorIs(t, err, ErrCallTimeout)
}

func TestExecuteFlattensContent(t *testing.T) {
	conn := fakeConn("github", "stdio", &fakeClient{
		callRes: &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: "before "},
				mcp.ImageContent{Type: "image", Data: "aGk=", MIMEType: "image/png"},
				mcp.TextContent{Type: "text", Text: " after"},
			},
		},
	})
	tool := newTool(conn, mcp.Tool{Name: "search"}, time.Second)
	res, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "before [Non-text content] after", res.Text)
}

func TestDescribeRemote(t *testing.T) {
	t.Run("appends provenance", func(t *testing.T) {
		got := DescribeRemote("Search issues.", "search_issues", "github", "stdio")
		require.Contains(t, got, "Search issues.")
		require.Contains(t, got, `"github"`)
		require.Contains(t, got, "stdio")
		require.Contains(t, got, `"search_issues"`)
	})

	t.Run("applying twice changes nothing", func(t *testing.T) {
		once := DescribeRemote("Search issues.", "search_issues", "github", "stdio")
		twice := DescribeRemote(once, "search_issues", "github", "stdio")
		require.Equal(t, once, twice)
	})

	t.Run("empty description", func(t *testing.T) {
		got := DescribeRemote("", "search_issues", "github", "sse")
		require.Equal(t, `Provided by the "github" tool server over sse as "search_issues".`, got)
	})
}

func TestToolDescription(t *testing.T) {
	conn := fakeConn("github", "stdio", &fakeClient{})
	tool := newTool(conn, mcp.Tool{
		Name:        "search_issues",
		Description: "Search issues in a repository.",
	}, time.Second)
	golden.RequireEqual(t, []byte(tool.Description))
}

func TestResultRendering(t *testing.T) {
	t.Run("display and model handoff never diverge", func(t *testing.T) {
		res := Result{Tool: "github_search", Text: "  3 issues found\n"}
		require.Equal(t, res.Display(), res.ForModel())
		require.Equal(t, "3 issues found", res.Display())
	})

	t.Run("empty output says so", func(t *testing.T) {
		res := Result{Tool: "github_search"}
		require.Equal(t, "github_search returned no content.", res.Display())
		require.Equal(t, res.Display(), res.ForModel())
	})
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestToolServersOrder(t *testing.T) {
	t.Run("keeps file order", func(t *testing.T) {
		var cfg Config
		require.NoError(t, yaml.Unmarshal([]byte(`
servers:
  zulu:
    command: zulu-server
  alpha:
    command: alpha-server
  mike:
    type: sse
    url: https://mike.example.com/sse
`), &cfg))
		require.Equal(t, []string{"zulu", "alpha", "mike"}, cfg.Servers.Names())
	})

	t.Run("assigns names from keys", func(t *testing.T) {
		var cfg Config
		require.NoError(t, yaml.Unmarshal([]byte(`
servers:
  github:
    command: npx
    args: [-y, "@modelcontextprotocol/server-github"]
    timeout: 2m
`), &cfg))
		require.Len(t, cfg.Servers, 1)
		srv := cfg.Servers[0]
		require.Equal(t, "github", srv.Name)
		require.Equal(t, "npx", srv.Command)
		require.Equal(t, []string{"-y", "@modelcontextprotocol/server-github"}, srv.Args)
		require.Equal(t, 2*time.Minute, srv.Timeout)
	})

	t.Run("empty server map is fine", func(t *testing.T) {
		var cfg Config
		require.NoError(t, yaml.Unmarshal([]byte("servers:\n"), &cfg))
		require.Empty(t, cfg.Servers)
	})
}

func TestToolServersGet(t *testing.T) {
	servers := ToolServers{
		{Name: "one", Command: "one-server"},
		{Name: "two", URL: "https://two.example.com", Type: "http"},
	}

	srv, ok := servers.Get("two")
	require.True(t, ok)
	require.Equal(t, "https://two.example.com", srv.URL)

	_, ok = servers.Get("three")
	require.False(t, ok)
}

func TestTransport(t *testing.T) {
	require.Equal(t, "stdio", ToolServer{}.Transport())
	require.Equal(t, "stdio", ToolServer{Type: "stdio"}.Transport())
	require.Equal(t, "sse", ToolServer{Type: "sse"}.Transport())
	require.Equal(t, "http", ToolServer{Type: "http"}.Transport())
}

func TestValidate(t *testing.T) {
	t.Run("duplicate names", func(t *testing.T) {
		servers := ToolServers{
			{Name: "dup", Command: "a"},
			{Name: "dup", Command: "b"},
		}
		require.ErrorContains(t, servers.validate(), "duplicate tool server name")
	})

	t.Run("stdio needs command", func(t *testing.T) {
		servers := ToolServers{{Name: "cmdless"}}
		require.ErrorContains(t, servers.validate(), "need a command")
	})

	t.Run("sse needs url", func(t *testing.T) {
		servers := ToolServers{{Name: "urless", Type: "sse"}}
		require.ErrorContains(t, servers.validate(), "need a url")
	})

	t.Run("unknown type", func(t *testing.T) {
		servers := ToolServers{{Name: "weird", Type: "grpc"}}
		require.ErrorContains(t, servers.validate(), "supported types are: stdio, sse, http")
	})

	t.Run("valid set", func(t *testing.T) {
		servers := ToolServers{
			{Name: "a", Command: "a-server"},
			{Name: "b", Type: "sse", URL: "https://b.example.com"},
			{Name: "c", Type: "http", URL: "https://c.example.com"},
		}
		require.NoError(t, servers.validate())
	})
}

func TestExpandServer(t *testing.T) {
	t.Run("expands env references", func(t *testing.T) {
		t.Setenv("CREW_TEST_TOKEN", "s3cret")
		srv := ToolServer{
			Name:    "gh",
			Command: "npx",
			Args:    []string{"--token", "${CREW_TEST_TOKEN}"},
			Env:     []string{"GITHUB_TOKEN=${CREW_TEST_TOKEN}"},
			Headers: map[string]string{"Authorization": "Bearer ${CREW_TEST_TOKEN}"},
		}
		require.NoError(t, ExpandServer(&srv))
		require.Equal(t, []string{"--token", "s3cret"}, srv.Args)
		require.Equal(t, []string{"GITHUB_TOKEN=s3cret"}, srv.Env)
		require.Equal(t, "Bearer s3cret", srv.Headers["Authorization"])
	})

	t.Run("splits single string commands", func(t *testing.T) {
		srv := ToolServer{Name: "gh", Command: `npx -y "@modelcontextprotocol/server-github"`}
		require.NoError(t, ExpandServer(&srv))
		require.Equal(t, "npx", srv.Command)
		require.Equal(t, []string{"-y", "@modelcontextprotocol/server-github"}, srv.Args)
	})

	t.Run("keeps explicit args untouched", func(t *testing.T) {
		srv := ToolServer{Name: "gh", Command: "npx", Args: []string{"-y"}}
		require.NoError(t, ExpandServer(&srv))
		require.Equal(t, "npx", srv.Command)
		require.Equal(t, []string{"-y"}, srv.Args)
	})
}

func TestDefault(t *testing.T) {
	def := Default()
	require.Equal(t, 10*time.Minute, def.CallTimeout)
	require.Equal(t, 5*time.Second, def.Cloud.PollInterval)
	require.NotEmpty(t, def.Cloud.Endpoint)
	require.NotEmpty(t, def.Cloud.Scopes)
}

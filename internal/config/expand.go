package config

import (
	"fmt"
	"os"
	"strings"

	shellwords "github.com/caarlos0/go-shellwords"
)

// ExpandServer expands ${VAR} references in the server's command, args, env,
// url, and header values, and splits a single-string command into command
// and args.
//
// Expansion happens once, at load time, so later bring-ups see a stable
// configuration.
func ExpandServer(srv *ToolServer) error {
	srv.Command = os.ExpandEnv(srv.Command)
	srv.URL = os.ExpandEnv(srv.URL)
	for i, arg := range srv.Args {
		srv.Args[i] = os.ExpandEnv(arg)
	}
	for i, kv := range srv.Env {
		srv.Env[i] = os.ExpandEnv(kv)
	}
	for k, v := range srv.Headers {
		srv.Headers[k] = os.ExpandEnv(v)
	}

	if len(srv.Args) == 0 && strings.ContainsRune(srv.Command, ' ') {
		words, err := shellwords.Parse(srv.Command)
		if err != nil {
			return fmt.Errorf("split command for %q: %w", srv.Name, err)
		}
		if len(words) > 0 {
			srv.Command = words[0]
			srv.Args = words[1:]
		}
	}
	return nil
}

func (ts ToolServers) validate() error {
	seen := map[string]bool{}
	for _, srv := range ts {
		if srv.Name == "" {
			return fmt.Errorf("tool server with empty name")
		}
		if seen[srv.Name] {
			return fmt.Errorf("duplicate tool server name: %q", srv.Name)
		}
		seen[srv.Name] = true

		switch srv.Type {
		case "", "stdio":
			if srv.Command == "" {
				return fmt.Errorf("tool server %q: stdio servers need a command", srv.Name)
			}
		case "sse", "http":
			if srv.URL == "" {
				return fmt.Errorf("tool server %q: %s servers need a url", srv.Name, srv.Type)
			}
		default:
			return fmt.Errorf("unsupported tool server type: %q, supported types are: stdio, sse, http", srv.Type)
		}
	}
	return nil
}

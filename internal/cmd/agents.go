package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/creds"
	"github.com/dotcommander/crew/internal/errs"
	"github.com/dotcommander/crew/internal/history"
	"github.com/dotcommander/crew/internal/present"
	"github.com/dotcommander/crew/internal/tui"
)

func newAgentsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Bring up the crew and show who made it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.runAgents(cmd)
		},
	}
}

func (rt *runtime) runAgents(cmd *cobra.Command) error {
	drainStdin()
	if len(rt.cfg.Servers) == 0 {
		fmt.Fprintf(
			os.Stderr,
			"No tool servers configured. Add some under %s in %s.\n",
			present.StderrStyles().InlineCode.Render("servers"),
			present.StderrStyles().Link.Render(rt.cfg.SettingsPath),
		)
		return nil
	}

	manager, results, err := rt.loadAgents(cmd, nil, true)
	if err != nil {
		return err
	}
	defer manager.Close() //nolint:errcheck

	printAgents(manager, results)
	return nil
}

// loadAgents brings up every enabled server. With progress set and a TTY on
// both ends it shows the live bring-up on stderr; otherwise bring-up is
// silent and only the outcome is reported.
func (rt *runtime) loadAgents(cmd *cobra.Command, rec *history.Recorder, progress bool) (*agent.Manager, []agent.LoadResult, error) {
	opts := []agent.Option{agent.WithTokenFunc(mintToken)}
	if rec != nil {
		opts = append(opts, agent.WithObserver(rec.Observe))
	}

	ctx := cmd.Context()

	if progress && present.IsInputTTY() && present.IsOutputTTY() && !rt.cfg.Raw && !rt.cfg.Quiet {
		// Buffered so bring-up never blocks on an abandoned progress view.
		events := make(chan agent.LoadResult, len(rt.cfg.Servers))
		opts = append(opts, agent.WithLoadNotify(func(r agent.LoadResult) {
			events <- r
		}))
		manager := agent.NewManager(&rt.cfg, nil, opts...)

		resultsCh := make(chan []agent.LoadResult, 1)
		go func() {
			resultsCh <- manager.Load(ctx)
			close(events)
		}()

		connect := tui.NewConnect(present.StderrRenderer(), serverNames(manager), events)
		p := tea.NewProgram(connect, tea.WithOutput(os.Stderr))
		if _, err := p.Run(); err != nil {
			_ = manager.Close()
			return nil, nil, errs.Wrap(err, "Couldn't start Bubble Tea program.")
		}
		return manager, <-resultsCh, nil
	}

	manager := agent.NewManager(&rt.cfg, nil, opts...)
	results := manager.Load(ctx)
	return manager, results, nil
}

// mintToken adapts the credential provider to the manager. An empty token
// with no error means the server connects unauthenticated.
func mintToken(ctx context.Context, scopes []string) (string, error) {
	provider, err := creds.New(creds.Config{Scopes: scopes})
	if err != nil {
		return "", fmt.Errorf("credentials: %w", err)
	}
	tok, ok, err := provider.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("credentials: %w", err)
	}
	if !ok {
		return "", nil
	}
	return tok.Value, nil
}

func serverNames(m *agent.Manager) []string {
	var names []string
	for srv := range m.EnabledServers() {
		names = append(names, srv.Name)
	}
	return names
}

func printAgents(m *agent.Manager, results []agent.LoadResult) {
	styles := present.StdoutStyles()
	active, hasActive := m.Active()
	for _, r := range results {
		marker := "  "
		switch {
		case r.Err != nil:
			fmt.Printf(
				"%s%s\t%s\t%s\n",
				marker,
				r.Server.Name,
				styles.Comment.Render(r.Server.Transport()),
				styles.ErrorDetails.Render(r.Err.Error()),
			)
		default:
			if hasActive && active.Name == r.Agent.Name {
				marker = styles.Flag.Render("*") + " "
			}
			fmt.Printf(
				"%s%s\t%s\t%s\n",
				marker,
				r.Agent.Name,
				styles.Comment.Render(r.Server.Transport()),
				styles.Timeago.Render(toolCount(len(r.Agent.Tools))),
			)
		}
	}
}

func toolCount(n int) string {
	if n == 1 {
		return "1 tool"
	}
	return fmt.Sprintf("%d tools", n)
}

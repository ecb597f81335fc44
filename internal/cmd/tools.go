package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/errs"
	"github.com/dotcommander/crew/internal/present"
)

func newToolsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:               "tools [server]",
		Short:             "List the tools the crew offers",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeServers(rt),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			drainStdin()

			manager, _, err := rt.loadAgents(cmd, nil, false)
			if err != nil {
				return err
			}
			defer manager.Close() //nolint:errcheck

			agents := manager.Agents()
			if len(args) == 1 {
				a, ok := manager.Agent(args[0])
				if !ok {
					if _, configured := rt.cfg.Servers.Get(args[0]); configured {
						//nolint:wrapcheck // user-facing guidance error
						return errs.UserErrorf("The %q server is configured but did not come up.", args[0])
					}
					//nolint:wrapcheck // user-facing guidance error
					return errs.UserErrorf("No loaded agent named %q.", args[0])
				}
				agents = []*agent.Agent{a}
			}

			printTools(agents, rt.cfg.Raw)
			return nil
		},
	}
}

func printTools(agents []*agent.Agent, raw bool) {
	styles := present.StdoutStyles()
	for _, a := range agents {
		for _, t := range a.Tools {
			fmt.Fprint(os.Stdout, styles.Timeago.Render(a.Name+" > "))
			fmt.Fprint(os.Stdout, t.Name)
			if first := firstLine(t.Description); first != "" && !raw {
				fmt.Fprint(os.Stdout, styles.Comment.Render("  # "+first))
			}
			fmt.Fprintln(os.Stdout)
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// completeServers completes configured server names without dialing anything.
func completeServers(rt *runtime) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if rt.cfgErr != nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveDefault
		}
		var names []string
		for _, name := range rt.cfg.Servers.Names() {
			if strings.HasPrefix(name, toComplete) {
				names = append(names, name)
			}
		}
		return names, cobra.ShellCompDirectiveDefault
	}
}

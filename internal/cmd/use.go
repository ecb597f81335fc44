package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/errs"
	"github.com/dotcommander/crew/internal/present"
)

func newUseCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:               "use [name]",
		Short:             "Pick the agent that answers unrouted calls",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeServers(rt),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			drainStdin()

			manager, _, err := rt.loadAgents(cmd, nil, true)
			if err != nil {
				return err
			}
			defer manager.Close() //nolint:errcheck

			agents := manager.Agents()
			if len(agents) == 0 {
				return errs.Wrap(agent.ErrNoAgents, "No agents to pick from.")
			}

			name, err := pickAgent(agents, args)
			if err != nil {
				return err
			}

			if !manager.SetActive(name) {
				fmt.Fprintf(os.Stderr, "No loaded agent named %q. No agent selected.\n", name)
				return nil
			}
			active, _ := manager.Active()
			if !rt.cfg.Quiet {
				fmt.Printf("Unrouted calls now go to %s (%s).\n", active.Name, toolCount(len(active.Tools)))
			}
			return nil
		},
	}
}

func pickAgent(agents []*agent.Agent, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if !present.IsInputTTY() {
		//nolint:wrapcheck // user-facing guidance error
		return "", errs.UserErrorf("Pick which agent to use: %s", present.StderrStyles().InlineCode.Render("crew use NAME"))
	}

	var name string
	opts := make([]huh.Option[string], 0, len(agents))
	for _, a := range agents {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", a.Name, toolCount(len(a.Tools))), a.Name))
	}
	if err := huh.Run(
		huh.NewSelect[string]().
			Title("Agents").
			Options(opts...).
			Value(&name),
	); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errs.Error{Err: err, Reason: "User canceled."}
		}
		return "", errs.Wrap(err, "Couldn't pick an agent.")
	}
	return name, nil
}

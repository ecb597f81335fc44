package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/config"
	"github.com/dotcommander/crew/internal/errs"
	"github.com/dotcommander/crew/internal/history"
	"github.com/dotcommander/crew/internal/present"
)

func newCallCmd(rt *runtime) *cobra.Command {
	var timeout time.Duration
	callCmd := &cobra.Command{
		Use:   "call <[server:]tool> [params]",
		Short: "Call a tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}

			params, err := callParams(args)
			if err != nil {
				return err
			}

			// The flag wins over both the global and any per-server setting.
			if timeout > 0 {
				rt.cfg.CallTimeout = timeout
				for i := range rt.cfg.Servers {
					rt.cfg.Servers[i].Timeout = timeout
				}
			}

			store, err := openCallStore(rt.cfg.CachePath)
			if err != nil {
				return errs.Wrap(err, "Could not open the call log.")
			}
			defer store.Close() //nolint:errcheck
			rec := history.NewRecorder(store.DB, store.Payloads, nil)

			manager, _, err := rt.loadAgents(cmd, rec, false)
			if err != nil {
				return err
			}
			defer manager.Close() //nolint:errcheck

			res, err := manager.Call(cmd.Context(), args[0], params)
			if err != nil {
				return callError(err)
			}

			printCallResult(&rt.cfg, res)
			return nil
		},
	}
	callCmd.Flags().Var(newDurationFlag(timeout, &timeout), "timeout", present.StdoutStyles().FlagDesc.Render(helpText["timeout"]))
	return callCmd
}

// callParams decodes the tool params from the second argument or from piped
// stdin. No params at all is fine; tools without required inputs take an
// empty object.
func callParams(args []string) (map[string]any, error) {
	var raw string
	if len(args) == 2 {
		drainStdin()
		raw = strings.TrimSpace(args[1])
	} else {
		in, err := readStdin()
		if err != nil {
			return nil, errs.Wrap(err, "Could not read params from stdin.")
		}
		raw = in
	}
	if raw == "" {
		return nil, nil
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, errs.Error{Err: err, Reason: "Params have to be a JSON object."}
	}
	return params, nil
}

func callError(err error) error {
	switch {
	case errors.Is(err, agent.ErrNoAgents):
		return errs.Wrap(err, "No tool servers came up.")
	case errors.Is(err, agent.ErrUnknownTool):
		return errs.Wrap(err, "No such tool.")
	case errors.Is(err, agent.ErrCallTimeout):
		return errs.Wrap(err, "The call timed out. The agent is still up; try again or raise --timeout.")
	default:
		return errs.Wrap(err, "The call failed.")
	}
}

func printCallResult(cfg *config.Config, res agent.Result) {
	out := res.Display()
	if present.IsOutputTTY() && !cfg.Raw {
		if !cfg.Quiet {
			present.PrintConfirmation("CALLED", res.Tool)
		}
		if formatted, err := present.RenderMarkdownForTTY(out, cfg.WordWrap); err == nil {
			fmt.Print(formatted)
			return
		}
	}
	fmt.Println(out)
}

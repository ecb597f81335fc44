package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/crew/internal/config"
	"github.com/dotcommander/crew/internal/errs"
	"github.com/dotcommander/crew/internal/history"
	"github.com/dotcommander/crew/internal/history/payload"
	"github.com/dotcommander/crew/internal/present"
)

type callStore struct {
	DB       *history.DB
	Payloads *payload.Store
}

// openCallStore opens both the call index and the payload store.
func openCallStore(cachePath string) (*callStore, error) {
	payloads, err := payload.Open(filepath.Join(cachePath, "calls", "payloads"))
	if err != nil {
		return nil, fmt.Errorf("open call payload store: %w", err)
	}
	db, err := history.Open(filepath.Join(cachePath, "calls"))
	if err != nil {
		return nil, fmt.Errorf("open call index: %w", err)
	}
	return &callStore{DB: db, Payloads: payloads}, nil
}

// Close releases the underlying index resources.
func (s *callStore) Close() error {
	return s.DB.Close()
}

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the call log",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List logged calls",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return listCalls(&rt.cfg, rt.cfg.Raw)
		},
	}
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var last bool
	var copyOutput bool
	showCmd := &cobra.Command{
		Use:   "show [id-or-tool]",
		Short: "Show a logged call",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			drainStdin()
			in := ""
			if len(args) == 1 {
				in = args[0]
			}
			if in == "" && !last {
				return errs.Wrap(errs.UserErrorf("missing call id"), "Which call do you want to see?")
			}
			return showCall(&rt.cfg, in, copyOutput)
		},
		ValidArgsFunction: completeCalls(rt),
	}
	showCmd.Flags().BoolVarP(&last, "last", "S", false, present.StdoutStyles().FlagDesc.Render(helpText["last"]))
	showCmd.Flags().BoolVarP(&copyOutput, "copy", "c", false, present.StdoutStyles().FlagDesc.Render(helpText["copy"]))
	showCmd.Flags().SortFlags = false
	return showCmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-tool> [more...]",
		Short: "Delete logged calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return deleteCalls(&rt.cfg, args)
		},
		ValidArgsFunction: completeCalls(rt),
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete calls older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if olderThan == 0 {
				return errs.Wrap(errs.UserErrorf("missing --older-than"), "Could not delete old calls.")
			}
			return deleteCallsOlderThan(&rt.cfg, olderThan)
		},
	}
	pruneCmd.Flags().Var(newDurationFlag(olderThan, &olderThan), "older-than", present.StdoutStyles().FlagDesc.Render(helpText["older-than"]))
	return pruneCmd
}

func listCalls(cfg *config.Config, raw bool) error {
	store, err := openCallStore(cfg.CachePath)
	if err != nil {
		return errs.Wrap(err, "Could not open the call log.")
	}
	defer store.Close() //nolint:errcheck

	calls := store.DB.List()
	if len(calls) == 0 {
		fmt.Fprintln(os.Stderr, "No calls logged yet.")
		return nil
	}

	if present.IsInputTTY() && present.IsOutputTTY() && !raw {
		selectFromList(calls)
		return nil
	}
	printList(calls)
	return nil
}

func makeOptions(calls []history.Record) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(calls))
	for _, rec := range calls {
		timea := present.StdoutStyles().Timeago.Render(timeago.Of(rec.StartedAt))
		left := present.StdoutStyles().SHA1.Render(rec.ID[:history.IDShort])
		right := present.StdoutStyles().CallList.Render(rec.Tool, timea)
		right += present.StdoutStyles().Comment.Render(" (" + string(rec.Status) + ")")
		opts = append(opts, huh.NewOption(left+" "+right, rec.ID))
	}
	return opts
}

func selectFromList(calls []history.Record) {
	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Calls").
				Value(&selected).
				Options(makeOptions(calls)...),
		),
	).Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return
	}

	_ = clipboard.WriteAll(selected)
	termenv.Copy(selected)
	present.PrintConfirmation("COPIED", selected)

	fmt.Println(present.StdoutStyles().Comment.Render("You can use this call ID with the following commands:"))
	suggestions := []string{
		"crew history show " + selected,
		"crew history delete " + selected,
	}
	for _, s := range suggestions {
		fmt.Printf("  %s\n", present.StdoutStyles().InlineCode.Render(s))
	}
}

func printList(calls []history.Record) {
	styles := present.StdoutStyles()
	for _, rec := range calls {
		status := styles.Flag.Render(string(rec.Status))
		if rec.Status != history.StatusOK {
			status = styles.ErrorDetails.Render(string(rec.Status))
		}
		_, _ = fmt.Fprintf(
			os.Stdout,
			"%s\t%s\t%s\t%s\n",
			styles.SHA1.Render(rec.ID[:history.IDShort]),
			rec.Tool,
			status,
			styles.Timeago.Render(timeago.Of(rec.StartedAt)),
		)
	}
}

func showCall(cfg *config.Config, in string, copyOutput bool) error {
	store, err := openCallStore(cfg.CachePath)
	if err != nil {
		return errs.Wrap(err, "Could not open the call log.")
	}
	defer store.Close() //nolint:errcheck

	var rec *history.Record
	if in == "" {
		rec, err = store.DB.Latest()
	} else {
		rec, err = store.DB.Find(in)
	}
	if err != nil {
		return errs.Wrap(err, "There was an error loading the call.")
	}

	p, err := store.Payloads.Read(rec.ID)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the call payload.")
	}

	if copyOutput {
		_ = clipboard.WriteAll(p.Output)
		termenv.Copy(p.Output)
		present.PrintConfirmation("COPIED", rec.ID[:history.IDShort])
	}

	out := renderCallRecord(*rec, p)
	if present.IsOutputTTY() && !cfg.Raw {
		formatted, err := present.RenderMarkdownForTTY(out, cfg.WordWrap)
		if err == nil {
			out = formatted
		}
	}
	fmt.Print(out)
	return nil
}

// renderCallRecord lays the record out as markdown so both the TTY and the
// plain path print the same document.
func renderCallRecord(rec history.Record, p payload.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Tool)
	fmt.Fprintf(&b, "- Server: %s\n", rec.Server)
	fmt.Fprintf(&b, "- Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "- Started: %s\n", rec.StartedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(&b, "- Took: %s\n", rec.Duration)
	if rec.Err != "" {
		fmt.Fprintf(&b, "- Error: %s\n", rec.Err)
	}
	if len(p.Params) > 0 {
		if data, err := json.MarshalIndent(p.Params, "", "  "); err == nil {
			fmt.Fprintf(&b, "\n## Params\n\n```json\n%s\n```\n", data)
		}
	}
	if p.Output != "" {
		fmt.Fprintf(&b, "\n## Output\n\n%s\n", p.Output)
	}
	return b.String()
}

func deleteCalls(cfg *config.Config, targets []string) error {
	store, err := openCallStore(cfg.CachePath)
	if err != nil {
		return errs.Wrap(err, "Couldn't delete call.")
	}
	defer store.Close() //nolint:errcheck

	for _, del := range targets {
		rec, err := store.DB.Find(del)
		if err != nil {
			return errs.Wrap(err, "Couldn't find call to delete.")
		}
		if err := deleteCallByID(cfg, store, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func deleteCallByID(cfg *config.Config, store *callStore, id string) error {
	if err := store.DB.Delete(id); err != nil {
		return fmt.Errorf("delete call index: %w", err)
	}
	if err := store.Payloads.Delete(id); err != nil {
		return fmt.Errorf("delete call payload: %w", err)
	}
	if !cfg.Quiet {
		fmt.Fprintln(os.Stderr, "Call deleted:", id[:history.IDMinLen])
	}
	return nil
}

func deleteCallsOlderThan(cfg *config.Config, olderThan time.Duration) error {
	store, err := openCallStore(cfg.CachePath)
	if err != nil {
		return errs.Wrap(err, "Could not open the call log.")
	}
	defer store.Close() //nolint:errcheck

	calls := store.DB.ListOlderThan(olderThan)
	if len(calls) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(os.Stderr, "No calls found.")
		}
		return nil
	}

	if !cfg.Quiet {
		printList(calls)

		if !present.IsOutputTTY() || !present.IsInputTTY() {
			fmt.Fprintln(os.Stderr)
			//nolint:wrapcheck // user-facing guidance error
			return errs.UserErrorf(
				"To delete the calls above, run: %s",
				strings.Join(append(os.Args, "--quiet"), " "),
			)
		}
		var confirm bool
		if err := huh.Run(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete calls older than %s?", olderThan)).
				Description(fmt.Sprintf("This will delete all the %d calls listed above.", len(calls))).
				Value(&confirm),
		); err != nil {
			return errs.Wrap(err, "Couldn't delete old calls.")
		}
		if !confirm {
			//nolint:wrapcheck // user-facing abort
			return errs.UserErrorf("Aborted by user")
		}
	}

	for _, rec := range calls {
		if err := deleteCallByID(cfg, store, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func completeCalls(rt *runtime) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if rt.cfgErr != nil || rt.cfg.CachePath == "" {
			return nil, cobra.ShellCompDirectiveDefault
		}
		db, err := history.Open(filepath.Join(rt.cfg.CachePath, "calls"))
		if err != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}
		defer db.Close() //nolint:errcheck
		return db.Completions(toComplete), cobra.ShellCompDirectiveDefault
	}
}

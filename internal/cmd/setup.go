package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	goruntime "runtime"
	"time"

	"github.com/charmbracelet/x/exp/ordered"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/dotcommander/crew/internal/cloud"
	"github.com/dotcommander/crew/internal/creds"
	"github.com/dotcommander/crew/internal/errs"
	"github.com/dotcommander/crew/internal/present"
)

func newSetupCmd(rt *runtime) *cobra.Command {
	var project string
	var timeout time.Duration
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Onboard this install with the crew backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			drainStdin()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			httpClient, err := setupHTTPClient(ctx, rt.cfg.Cloud.Scopes)
			if err != nil {
				return errs.Wrap(err, "Could not mint credentials.")
			}

			client := cloud.New(rt.cfg.Cloud, httpClient, cloud.ClientMetadata{
				Name:     "crew",
				Version:  rt.build.Version,
				Platform: goruntime.GOOS,
			})

			identity, err := client.Setup(ctx, ordered.First(project, rt.cfg.Cloud.Project))
			if err != nil {
				return setupError(err)
			}

			if !rt.cfg.Quiet {
				present.PrintConfirmation("ONBOARDED", string(identity.Tier))
			}
			if identity.ProjectID != "" {
				fmt.Printf("%s %s\n", present.StdoutStyles().Comment.Render("Project:"), identity.ProjectID)
			}
			return nil
		},
	}
	flags := setupCmd.Flags()
	flags.StringVarP(&project, "project", "p", "", present.StdoutStyles().FlagDesc.Render(helpText["project"]))
	flags.Var(newDurationFlag(timeout, &timeout), "timeout", present.StdoutStyles().FlagDesc.Render(helpText["timeout"]))
	flags.SortFlags = false
	return setupCmd
}

// setupHTTPClient returns a client carrying the minted credentials, or the
// default client when no credential source is around.
func setupHTTPClient(ctx context.Context, scopes []string) (*http.Client, error) {
	provider, err := creds.New(creds.Config{Scopes: scopes})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	_, ok, err := provider.Token(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	if !ok {
		return nil, nil
	}
	source, err := provider.TokenSource(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return oauth2.NewClient(ctx, source), nil
}

func setupError(err error) error {
	if errors.Is(err, cloud.ErrProjectRequired) {
		styles := present.StderrStyles()
		return errs.Error{
			Err: err,
			Reason: fmt.Sprintf(
				"Onboarding needs a project id. Pass %s, or set %s or %s in the settings.",
				styles.InlineCode.Render("--project"),
				styles.InlineCode.Render("CREW_PROJECT"),
				styles.InlineCode.Render("cloud.project"),
			),
		}
	}
	return errs.Wrap(err, "Could not finish onboarding.")
}

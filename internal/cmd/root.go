// Package cmd wires the CLI commands.
package cmd

import (
	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"

	"github.com/dotcommander/crew/internal/config"
	"github.com/dotcommander/crew/internal/present"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           "crew",
		Short:         "A crew of remote tools on the command line. Built for pipelines.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.runAgents(cmd)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	// Commands.
	rootCmd.AddCommand(newAgentsCmd(rt))
	rootCmd.AddCommand(newUseCmd(rt))
	rootCmd.AddCommand(newToolsCmd(rt))
	rootCmd.AddCommand(newCallCmd(rt))
	rootCmd.AddCommand(newSetupCmd(rt))
	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))
	rootCmd.AddCommand(newUpgradeCmd(rt))

	// Enable completion now that we have subcommands.
	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, present.StdoutStyles().FlagDesc.Render(helpText["quiet"]))
	flags.BoolVarP(&cfg.Raw, "raw", "r", cfg.Raw, present.StdoutStyles().FlagDesc.Render(helpText["raw"]))
	flags.SortFlags = false
	cmd.Flags().SortFlags = false

	flags.BoolVar(&memprofile, "memprofile", false, "Write memory profiles to CWD")
	_ = flags.MarkHidden("memprofile")
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotcommander/crew/internal/config"
)

// Execute wires commands and runs Cobra.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	defer maybeWriteMemProfile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(build, cfg, cfgErr)
	if err := root.ExecuteContext(ctx); err != nil {
		handleError(err)
		os.Exit(1)
	}
}

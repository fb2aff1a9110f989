// Package cli implements shopctl, the operator command line for GarageDesk.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/garagedesk/garagedesk/internal/app"
)

// NewRootCommand assembles the shopctl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "shopctl",
		Short:        "Operate a GarageDesk installation",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(
		newMigrateCommand(),
		newSeedCommand(),
		newJobsCommand(),
		newRemindCommand(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	return cfg, logger, nil
}

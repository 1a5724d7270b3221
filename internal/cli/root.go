// Package cli holds the lendhub cobra commands.
package cli

import (
	"github.com/spf13/cobra"

	"lendhub/internal/config"
	"lendhub/pkg/logger"
)

type rootOptions struct {
	envFile string
}

// NewRootCmd builds the lendhub command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lendhub",
		Short: "Lending library backend: inventory, borrow requests, notifications",
		Long: `lendhub tracks copies of catalogue items, moves borrow requests through
review, notifies members about new requests, due dates and returned copies,
and runs a periodic due-date scan.

Configuration is read from LENDHUB_* environment variables and an optional .env file.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load settings from this file instead of .env")

	cmd.AddCommand(
		newServeCmd(opts, version),
		newScanCmd(opts),
		newMigrateCmd(opts),
		newChaosCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *logger.Logger, error) {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "lendhub",
	})
	return cfg, log, nil
}

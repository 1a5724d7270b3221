package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lendhub/internal/app"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one due-date scan and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Scanner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, reminders %d, overdue %d, failed %d, purged %d\n",
				report.Scanned, report.Reminders, report.Overdue, report.Failed, report.Purged)
			return nil
		},
	}
}

package cli

import (
	"time"

	"github.com/spf13/cobra"

	"lendhub/internal/app"
	"lendhub/internal/chaos"
)

func newChaosCmd(opts *rootOptions) *cobra.Command {
	var (
		pause    time.Duration
		copies   int
		requests int
	)

	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Run the consistency experiments against the configured store",
		Long: `Runs the built-in experiments and reports whether each hypothesis held:

  concurrent-approval-race      more approvals than copies, all at once
  notification-handler-failure  failing and panicking handlers beside the defaults

The experiments create their own members and items. Exits non-zero when any
hypothesis is violated.`,
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

			engine := chaos.NewEngine(log.Named("chaos"))
			engine.Register(chaos.ConcurrentApprovalRace(a, copies, requests))
			engine.Register(chaos.HandlerFailureIsolation(a))

			return engine.ExecuteGameDay(cmd.Context(), chaos.GameDay{
				Name:      "lendhub consistency",
				Date:      time.Now(),
				Scenarios: engine.Experiments(),
				Pause:     pause,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&pause, "pause", 0, "Wait between experiments")
	cmd.Flags().IntVar(&copies, "copies", 3, "Copies of the raced item")
	cmd.Flags().IntVar(&requests, "requests", 25, "Concurrent approvals in the race")
	return cmd
}

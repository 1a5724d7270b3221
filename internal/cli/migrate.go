package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lendhub/internal/config"
	"lendhub/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Example: `  LENDHUB_STORE_DRIVER=sqlite lendhub migrate
  LENDHUB_STORE_DRIVER=postgres DATABASE_URL=postgres://... lendhub migrate --down`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreMemory {
				return fmt.Errorf("the memory store has no schema; set LENDHUB_STORE_DRIVER")
			}

			driver := cfg.DatabaseDriver()
			db, err := database.Open(cmd.Context(), database.Config{
				Driver:     driver,
				URL:        cfg.DatabaseURL,
				SQLitePath: cfg.SQLitePath,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				if err := database.MigrateDown(db, driver); err != nil {
					return err
				}
				log.Info("migrations reverted")
				return nil
			}
			version, err := database.Migrate(db, driver)
			if err != nil {
				return err
			}
			log.WithField("version", version).Info("migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Revert every migration instead")
	return cmd
}

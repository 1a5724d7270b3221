package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"lendhub/internal/app"
	"lendhub/internal/httpapi"
	"lendhub/internal/metrics"
	"lendhub/internal/scanner"
	"lendhub/internal/telemetry"
)

func newServeCmd(opts *rootOptions, version string) *cobra.Command {
	var (
		addr   string
		noScan bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the due-date scanner",
		Example: `  # Serve on the configured address with an in-memory store
  lendhub serve

  # Serve against postgres without the background scanner
  LENDHUB_STORE_DRIVER=postgres DATABASE_URL=postgres://... lendhub serve --no-scan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx := cmd.Context()

			shutdownTracing, err := telemetry.Setup(ctx, "lendhub", version, cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					log.WithError(err).Warn("trace exporter shutdown failed")
				}
			}()

			a, err := app.Open(ctx, cfg, log, cfg.MigrateOnServe)
			if err != nil {
				return err
			}
			defer a.Close()

			var runner *scanner.Runner
			if !noScan {
				runner, err = newRunner(a)
				if err != nil {
					return err
				}
				if err := runner.Start(ctx); err != nil {
					return err
				}
			}

			m := metrics.New()
			server := &http.Server{
				Addr: cfg.HTTPAddr,
				Handler: httpapi.NewRouter(a.Services(), httpapi.Options{
					Log:          log.Named("http"),
					Metrics:      m,
					RequestRate:  cfg.RequestRate,
					RequestBurst: cfg.RequestBurst,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.HTTPAddr).WithField("store", cfg.StoreDriver).Info("lendhub listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err = <-serverErr:
				log.WithError(err).Error("http server failed")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
				log.WithError(shutdownErr).Error("http shutdown failed")
			}
			if runner != nil {
				if stopErr := runner.Stop(shutdownCtx); stopErr != nil {
					log.WithError(stopErr).Warn("scanner did not stop in time")
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides LENDHUB_HTTP_ADDR)")
	cmd.Flags().BoolVar(&noScan, "no-scan", false, "Do not run the periodic due-date scanner")
	return cmd
}

// newRunner schedules the app's scanner, elected through redis when
// LENDHUB_REDIS_URL is set.
func newRunner(a *app.App) (*scanner.Runner, error) {
	schedule, err := a.Config.Schedule()
	if err != nil {
		return nil, err
	}
	var options []scanner.RunnerOption
	if a.Config.RedisURL != "" {
		lock, err := scanner.NewRedisLock(a.Config.RedisURL)
		if err != nil {
			return nil, err
		}
		options = append(options, scanner.WithLock(lock, 10*time.Minute))
	}
	return scanner.NewRunner(a.Scanner, schedule, a.Log.Named("scanner"), options...), nil
}

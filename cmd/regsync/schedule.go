package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/qor5/go-bus"
	"github.com/spf13/cobra"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/fetch"
	"github.com/theplant/regsync/ingest"
	"github.com/theplant/regsync/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the durable monthly import worker",
	Long: "Runs a worker that imports each reporting period as a durable queue job " +
		"and chains the next period on completion. Requires the postgres driver; " +
		"the job queue lives in the same database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "postgresql" {
			return errors.New("schedule requires the postgres driver")
		}
		if cfg.Source.ProviderURL == "" {
			return errors.New("source.provider_url is required for scheduled imports")
		}

		sqlDB, err := db.DB()
		if err != nil {
			return errors.Wrap(err, "failed to get sql.DB handle")
		}

		client := &http.Client{Timeout: cfg.Source.RequestTimeout}
		runner := ingest.NewRunner(db, ingest.Config{
			PageSize:    cfg.Import.PageSize,
			Parallelism: cfg.Import.Parallelism,
			Resume:      true,
		})

		scheduler, err := schedule.New(&schedule.Config{
			Import: func(ctx context.Context, periodDate time.Time) error {
				var ownership regsync.PagedSource
				if cfg.Source.OwnershipURL != "" {
					ownership = fetch.NewRemoteSource(client, cfg.Source.OwnershipURL)
				}
				label := fmt.Sprintf("scheduled %s", periodDate.Format("2006-01"))
				_, err := runner.Run(ctx, periodDate, label,
					fetch.NewRemoteSource(client, cfg.Source.ProviderURL), ownership)
				return err
			},
			QueueDB:          sqlDB,
			QueueName:        cfg.Schedule.QueueName,
			ConsistencyDelay: cfg.Schedule.ConsistencyDelay,
			RetryPolicy:      bus.DefaultRetryPolicyFactory(),
		})
		if err != nil {
			return err
		}

		seed := currentPeriod()
		if raw, _ := cmd.Flags().GetString("seed-period"); raw != "" {
			if seed, err = parsePeriod(raw); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		controller, err := scheduler.Start(ctx, seed)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "worker started, seed period %s\n", seed.Format("2006-01-02"))

		<-ctx.Done()
		fmt.Fprintln(cmd.OutOrStdout(), "shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return controller.Stop(stopCtx)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().String("seed-period", "", "first period to enqueue YYYY-MM-DD (default: first day of current month)")
}

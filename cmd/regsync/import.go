package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/config"
	"github.com/theplant/regsync/fetch"
	"github.com/theplant/regsync/ingest"
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Import the current period's extract from the dataset API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}

		period := currentPeriod()
		if raw, _ := cmd.Flags().GetString("period"); raw != "" {
			if period, err = parsePeriod(raw); err != nil {
				return err
			}
		}

		if cfg.Source.ProviderURL == "" {
			return errors.New("source.provider_url is required for latest imports")
		}
		client := &http.Client{Timeout: cfg.Source.RequestTimeout}
		provider := fetch.NewRemoteSource(client, cfg.Source.ProviderURL)

		var ownership regsync.PagedSource
		if cfg.Source.OwnershipURL != "" {
			ownership = fetch.NewRemoteSource(client, cfg.Source.OwnershipURL)
		}

		label := fmt.Sprintf("dataset-api %s", period.Format("2006-01"))
		return runImport(cmd, db, cfg, period, label, provider, ownership)
	},
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Import a period from downloaded extract CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}

		raw, _ := cmd.Flags().GetString("period")
		period, err := parsePeriod(raw)
		if err != nil {
			return err
		}

		providerPath, _ := cmd.Flags().GetString("provider-csv")
		provider, err := fetch.NewFileSource(providerPath)
		if err != nil {
			return err
		}

		var ownership regsync.PagedSource
		if ownershipPath, _ := cmd.Flags().GetString("ownership-csv"); ownershipPath != "" {
			if ownership, err = fetch.NewFileSource(ownershipPath); err != nil {
				return err
			}
		}

		label := fmt.Sprintf("file %s", providerPath)
		return runImport(cmd, db, cfg, period, label, provider, ownership)
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Seed the first extract from an existing current-state table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}

		raw, _ := cmd.Flags().GetString("period")
		period, err := parsePeriod(raw)
		if err != nil {
			return err
		}

		table, _ := cmd.Flags().GetString("table")
		orderBy, _ := cmd.Flags().GetString("order-by")
		source := fetch.NewTableSource(db, table, orderBy)

		label := fmt.Sprintf("baseline %s", table)
		return runImport(cmd, db, cfg, period, label, source, nil)
	},
}

func runImport(cmd *cobra.Command, db *gorm.DB, cfg *config.Config, period time.Time, label string, provider, ownership regsync.PagedSource) error {
	resume, _ := cmd.Flags().GetBool("resume")
	skipDetection, _ := cmd.Flags().GetBool("skip-detection")

	runner := ingest.NewRunner(db, ingest.Config{
		PageSize:      cfg.Import.PageSize,
		Parallelism:   cfg.Import.Parallelism,
		Resume:        resume,
		SkipDetection: skipDetection,
		Progress: func(done, total int) {
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d/%d\n", done, total)
		},
	})

	summary, err := runner.Run(cmd.Context(), period, label, provider, ownership)
	if err != nil {
		if summary != nil {
			fmt.Fprintf(cmd.ErrOrStderr(),
				"import aborted for extract %d: %d facilities persisted this run, resumable from offset %d with --resume\n",
				summary.ExtractID, summary.Imported, summary.ResumedFrom+summary.Imported)
		}
		return err
	}

	if summary.AlreadyCompleted {
		fmt.Fprintf(cmd.OutOrStdout(), "period %s already imported (extract %d), nothing to do\n",
			period.Format("2006-01-02"), summary.ExtractID)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"extract %d: imported %d facilities (%d skipped, resumed from %d), %d owner rows, %d new events\n",
		summary.ExtractID, summary.Imported, summary.Skipped, summary.ResumedFrom,
		summary.OwnersImported, summary.EventsInserted)
	return nil
}

func init() {
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(baselineCmd)

	for _, cmd := range []*cobra.Command{latestCmd, fileCmd, baselineCmd} {
		cmd.Flags().Bool("resume", false, "take over an interrupted import and continue from the persisted row count")
		cmd.Flags().Bool("skip-detection", false, "import without diffing against the previous extract")
	}

	latestCmd.Flags().String("period", "", "reporting period YYYY-MM-DD (default: first day of current month)")

	fileCmd.Flags().String("period", "", "reporting period YYYY-MM-DD")
	fileCmd.Flags().String("provider-csv", "", "path to the facility extract CSV")
	fileCmd.Flags().String("ownership-csv", "", "path to the ownership extract CSV")
	_ = fileCmd.MarkFlagRequired("period")
	_ = fileCmd.MarkFlagRequired("provider-csv")

	baselineCmd.Flags().String("period", "", "reporting period YYYY-MM-DD")
	baselineCmd.Flags().String("table", "", "source table holding current facility state")
	baselineCmd.Flags().String("order-by", "ccn", "column giving the table a stable paging order")
	_ = baselineCmd.MarkFlagRequired("period")
	_ = baselineCmd.MarkFlagRequired("table")
}

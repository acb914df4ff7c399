package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/theplant/regsync"
	"github.com/theplant/regsync/ingest"
	"github.com/theplant/regsync/registry"
	"github.com/theplant/regsync/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB()
		if err != nil {
			return err
		}
		if err := regsync.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <previous-extract-id> <current-extract-id> <event-date>",
	Short: "Re-run change detection for an explicit extract pair",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}

		prevID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid previous extract id %q", args[0])
		}
		curID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid current extract id %q", args[1])
		}
		eventDate, err := parsePeriod(args[2])
		if err != nil {
			return err
		}

		runner := ingest.NewRunner(db, ingest.Config{
			PageSize:    cfg.Import.PageSize,
			Parallelism: cfg.Import.Parallelism,
		})
		inserted, err := runner.DetectPair(cmd.Context(), prevID, curID, eventDate)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d new events for extracts %d -> %d\n", inserted, prevID, curID)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete an extract with its snapshots, owner rows, and events",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB()
		if err != nil {
			return err
		}

		extractID, _ := cmd.Flags().GetInt64("extract")
		if err := store.New(db).PurgeExtract(cmd.Context(), extractID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged extract %d\n", extractID)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report extract history and check stored invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := store.New(db)

		extracts, err := registry.New(db).List(ctx)
		if err != nil {
			return err
		}
		for _, extract := range extracts {
			count := int64(0)
			if extract.RecordCount != nil {
				count = *extract.RecordCount
			}
			persisted, err := s.CountSnapshots(ctx, extract.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "extract %d %s %s: %d recorded, %d persisted\n",
				extract.ID, extract.PeriodDate.Format("2006-01-02"), extract.Status, count, persisted)
		}

		dupes, err := s.DuplicateSnapshotCount(ctx)
		if err != nil {
			return err
		}
		if dupes > 0 {
			return errors.Errorf("%d duplicated (extract, ccn) snapshot pairs", dupes)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "no duplicate snapshots")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(validateCmd)

	purgeCmd.Flags().Int64("extract", 0, "extract id to purge")
	_ = purgeCmd.MarkFlagRequired("extract")
}

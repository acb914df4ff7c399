package main

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/theplant/regsync/bqexport"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Publish detected events to BigQuery",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		if cfg.BigQuery.ProjectID == "" || cfg.BigQuery.DatasetID == "" {
			return errors.New("bigquery.project_id and bigquery.dataset_id are required")
		}

		ctx := cmd.Context()
		client, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID)
		if err != nil {
			return errors.Wrap(err, "failed to create bigquery client")
		}
		defer client.Close()

		since := time.Time{}
		if raw, _ := cmd.Flags().GetString("since"); raw != "" {
			if since, err = time.Parse("2006-01-02", raw); err != nil {
				return errors.Wrapf(err, "invalid since %q, want YYYY-MM-DD", raw)
			}
		}

		exporter, err := bqexport.New(&bqexport.Config{
			Client:    client,
			DatasetID: cfg.BigQuery.DatasetID,
			DB:        db,
		})
		if err != nil {
			return err
		}

		exported, err := exporter.Export(ctx, since)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d events\n", exported)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("since", "", "only export events created on or after this date YYYY-MM-DD (default: all)")
}

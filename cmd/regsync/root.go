package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/theplant/regsync/config"
	"github.com/theplant/regsync/dbconn"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "regsync",
	Short:         "Ingest regulatory facility extracts and derive change events",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "regsync: %+v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ./regsync.yaml)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func openDB() (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := dbconn.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// parsePeriod parses a --period value. Periods are the first day of
// the extract's reporting month.
func parsePeriod(raw string) (time.Time, error) {
	period, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid period %q, want YYYY-MM-DD", raw)
	}
	return period.UTC(), nil
}

// currentPeriod is the first day of the current month.
func currentPeriod() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

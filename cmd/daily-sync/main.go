package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/backfill"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/warehouse"
)

func main() {
	dateFlag := flag.String("date", "", "Optional: sync day (YYYY-MM-DD). Defaults to yesterday UTC.")
	snapshotDir := flag.String("snapshot-dir", "", "Optional: also write each fetched feed to CSV files in this directory.")
	flag.Parse()

	logger := config.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var date *time.Time
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -date %q: want YYYY-MM-DD\n", *dateFlag)
			os.Exit(1)
		}
		parsed = parsed.UTC()
		date = &parsed
	}

	ctx := context.Background()

	wh, err := warehouse.NewBigQueryClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bigquery: %v\n", err)
		os.Exit(1)
	}
	defer wh.Close()

	runner := vmpaysync.NewRunner(
		vmpaysync.NewClient(cfg),
		warehouse.NewEngine(wh, cfg.BigQueryDatasetID, logger),
		cfg.PageSize,
		logger,
	)

	if *snapshotDir != "" {
		if err := os.MkdirAll(*snapshotDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "snapshot dir: %v\n", err)
			os.Exit(1)
		}
		dir := *snapshotDir
		runner.Snapshot = func(entity string, records []vmpaysync.Record) error {
			data, err := backfill.EncodeCSV(records)
			if err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(dir, entity+".csv"), data, 0o644)
		}
	}

	summary, err := runner.RunDaily(ctx, date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daily sync failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("synced %d records for %s\n", summary.RecordsSynced, summary.Window)
	for _, auxErr := range summary.AuxErrors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", auxErr)
	}
	if len(summary.AuxErrors) > 0 {
		os.Exit(2)
	}
}

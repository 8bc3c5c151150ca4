package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/backfill"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
)

func main() {
	startFlag := flag.String("start", "", "Backfill start date (YYYY-MM-DD), inclusive.")
	endFlag := flag.String("end", "", "Backfill end date (YYYY-MM-DD), exclusive. Defaults to today UTC.")
	stepDays := flag.Int("step", 7, "Chunk size in days.")
	dir := flag.String("dir", "", "Optional: write artifacts to this local directory instead of GCS.")
	flag.Parse()

	logger := config.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -start %q: want YYYY-MM-DD\n", *startFlag)
		os.Exit(1)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if *endFlag != "" {
		end, err = time.Parse("2006-01-02", *endFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -end %q: want YYYY-MM-DD\n", *endFlag)
			os.Exit(1)
		}
	}
	if !start.Before(end) {
		fmt.Fprintln(os.Stderr, "-start must be before -end")
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := openStore(ctx, cfg, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact store: %v\n", err)
		os.Exit(1)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	bf := backfill.NewBackfill(vmpaysync.NewClient(cfg), store, cfg.PageSize, logger)
	summary, err := bf.Run(ctx, start.UTC(), end.UTC(), *stepDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("planned %d windows: %d skipped, %d fetched, %d records\n",
		summary.Planned, summary.Skipped, summary.Fetched, summary.Records)
}

func openStore(ctx context.Context, cfg *config.Config, dir string) (backfill.ArtifactStore, error) {
	if dir != "" {
		return backfill.NewDirStore(dir)
	}
	return backfill.NewGCSStore(ctx, cfg.GCSBucket, cfg.ArtifactPrefix, cfg.GCSCredentialsJSON)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/backfill"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
)

func main() {
	dir := flag.String("dir", "", "Optional: read artifacts from this local directory instead of GCS.")
	out := flag.String("out", "cashless_consolidated.csv", "Output path. A .xlsx extension switches to spreadsheet output.")
	flag.Parse()

	logger := config.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store backfill.ArtifactStore
	if *dir != "" {
		store, err = backfill.NewDirStore(*dir)
	} else {
		store, err = backfill.NewGCSStore(ctx, cfg.GCSBucket, cfg.ArtifactPrefix, cfg.GCSCredentialsJSON)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact store: %v\n", err)
		os.Exit(1)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	batches, err := backfill.LoadArtifacts(ctx, store, "cashless_")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load artifacts: %v\n", err)
		os.Exit(1)
	}
	if len(batches) == 0 {
		fmt.Fprintln(os.Stderr, "no cashless artifacts found")
		os.Exit(1)
	}

	result, err := backfill.Consolidate(batches, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consolidate: %v\n", err)
		os.Exit(1)
	}

	if strings.HasSuffix(strings.ToLower(*out), ".xlsx") {
		err = backfill.WriteCanonicalXLSX(result.Records, *out)
	} else {
		err = backfill.WriteCanonicalCSV(result.Records, *out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d records to %s (%d duplicates dropped)\n", len(result.Records), *out, result.Dropped)
}

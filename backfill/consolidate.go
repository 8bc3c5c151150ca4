package backfill

import (
	"context"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
	"github.com/sirupsen/logrus"
)

const (
	// CanonicalIdField is the id column every contributing source is
	// renamed to, so cashless ids cannot collide with other entities' ids.
	CanonicalIdField = "transaction_id"
	// RecencyField decides which of two rows for the same id is newer.
	RecencyField = "occurred_at"
)

type ConsolidateResult struct {
	Records []vmpaysync.Record
	// Dropped counts duplicate rows removed in favor of a more recent one.
	Dropped int
}

// Consolidate collapses overlapping chunk artifacts into one canonical
// per-id view: concatenate, rename id to transaction_id, stable-sort
// ascending by occurred_at, then keep the last occurrence per id.
//
// The tie-break for equal recency values is defined, not incidental: last
// input order wins, where input order is batch order (artifact-name order,
// chronological for the chunk naming scheme) with in-file order preserved.
func Consolidate(batches [][]vmpaysync.Record, log *logrus.Logger) (*ConsolidateResult, error) {
	var combined []vmpaysync.Record
	for _, batch := range batches {
		combined = append(combined, batch...)
	}

	for i, rec := range combined {
		if v, ok := rec["id"]; ok {
			delete(rec, "id")
			rec[CanonicalIdField] = v
		}
		if _, ok := rec[RecencyField]; !ok {
			return nil, fmt.Errorf("record %d has no %q field; cannot deduplicate without a recency signal", i, RecencyField)
		}
	}

	// ISO-8601 timestamps sort chronologically as strings, so the recency
	// sort is a plain string sort over the raw values.
	sort.SliceStable(combined, func(i, j int) bool {
		return recencyKey(combined[i]) < recencyKey(combined[j])
	})

	lastIndex := make(map[string]int, len(combined))
	for i, rec := range combined {
		lastIndex[idKey(rec)] = i
	}

	result := &ConsolidateResult{}
	for i, rec := range combined {
		if lastIndex[idKey(rec)] == i {
			result.Records = append(result.Records, rec)
		} else {
			result.Dropped++
		}
	}

	log.WithFields(logrus.Fields{
		"input_rows": len(combined),
		"kept_rows":  len(result.Records),
		"dropped":    result.Dropped,
	}).Info("consolidated cashless chunks (kept latest per id)")
	return result, nil
}

// LoadArtifacts reads every chunk artifact under the prefix, in sorted name
// order, which for the cashless naming scheme equals chronological order.
func LoadArtifacts(ctx context.Context, store ArtifactStore, prefix string) ([][]vmpaysync.Record, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	batches := make([][]vmpaysync.Record, 0, len(names))
	for _, name := range names {
		data, err := store.Read(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", name, err)
		}
		records, err := DecodeCSV(data)
		if err != nil {
			return nil, fmt.Errorf("decode artifact %s: %w", name, err)
		}
		batches = append(batches, records)
	}
	return batches, nil
}

func recencyKey(rec vmpaysync.Record) string {
	return fmt.Sprintf("%v", rec[RecencyField])
}

func idKey(rec vmpaysync.Record) string {
	return fmt.Sprintf("%v", rec[CanonicalIdField])
}

package backfill

import (
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
)

// PlanWindows splits [start, end) into contiguous, non-overlapping windows
// of stepDays each; the last window is shortened so the union covers the
// range exactly.
func PlanWindows(start, end time.Time, stepDays int) []vmpaysync.Window {
	if stepDays <= 0 {
		stepDays = 7
	}

	var windows []vmpaysync.Window
	current := start.UTC()
	end = end.UTC()
	for current.Before(end) {
		next := current.AddDate(0, 0, stepDays)
		if next.After(end) {
			next = end
		}
		windows = append(windows, vmpaysync.Window{Start: current, End: next})
		current = next
	}
	return windows
}

// ArtifactName derives the deterministic artifact identifier for one chunk
// from its window bounds. Existence of an object with this name is the sole
// resumability signal.
func ArtifactName(w vmpaysync.Window) string {
	return "cashless_" + w.String() + ".csv"
}

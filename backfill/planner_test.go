package backfill

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanWindowsCoversRangeExactly(t *testing.T) {
	start := day(2024, 1, 1)
	end := day(2024, 1, 24)

	windows := PlanWindows(start, end, 7)
	if len(windows) != 4 {
		t.Fatalf("got %d windows, want 4", len(windows))
	}
	if !windows[0].Start.Equal(start) {
		t.Fatalf("first window starts at %v", windows[0].Start)
	}
	if !windows[len(windows)-1].End.Equal(end) {
		t.Fatalf("last window ends at %v", windows[len(windows)-1].End)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].Start.Equal(windows[i-1].End) {
			t.Fatalf("gap between window %d and %d: %v vs %v", i-1, i, windows[i-1].End, windows[i].Start)
		}
	}
	// 23 days at step 7: three full weeks plus a 2-day remainder.
	last := windows[len(windows)-1]
	if last.End.Sub(last.Start) != 48*time.Hour {
		t.Fatalf("last window spans %v, want 48h", last.End.Sub(last.Start))
	}
}

func TestPlanWindowsEmptyRange(t *testing.T) {
	if windows := PlanWindows(day(2024, 1, 10), day(2024, 1, 10), 7); len(windows) != 0 {
		t.Fatalf("got %d windows for an empty range", len(windows))
	}
}

func TestArtifactName(t *testing.T) {
	w := vmpaysync.Window{Start: day(2024, 1, 1), End: day(2024, 1, 8)}
	if got := ArtifactName(w); got != "cashless_2024-01-01_to_2024-01-08.csv" {
		t.Fatalf("ArtifactName = %q", got)
	}
}

package backfill

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
	"github.com/sirupsen/logrus"
)

type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := s.objects[name]
	return ok, nil
}

func (s *memStore) Write(ctx context.Context, name string, data []byte) error {
	s.objects[name] = data
	return nil
}

func (s *memStore) Read(ctx context.Context, name string) ([]byte, error) {
	data, ok := s.objects[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type stubFetcher struct {
	byWindow map[string][]vmpaysync.Record
	err      error
	fetched  []string
}

func (f *stubFetcher) FetchWindow(ctx context.Context, w vmpaysync.Window, pageSize int) ([]vmpaysync.Record, error) {
	f.fetched = append(f.fetched, w.String())
	if f.err != nil {
		return nil, f.err
	}
	return f.byWindow[w.String()], nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func noSleepBackfill(fetcher *stubFetcher, store ArtifactStore) *Backfill {
	b := NewBackfill(fetcher, store, 100, quietLogger())
	b.sleep = func(time.Duration) {}
	return b
}

func TestBackfillSkipsExistingArtifacts(t *testing.T) {
	store := newMemStore()
	store.objects["cashless_2024-01-01_to_2024-01-08.csv"] = []byte("transaction_id\n1\n")

	fetcher := &stubFetcher{byWindow: map[string][]vmpaysync.Record{
		"2024-01-08_to_2024-01-15": {{"transaction_id": "2", "occurred_at": "2024-01-09T00:00:00Z"}},
	}}

	summary, err := noSleepBackfill(fetcher, store).Run(context.Background(), day(2024, 1, 1), day(2024, 1, 15), 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Planned != 2 || summary.Skipped != 1 || summary.Fetched != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "2024-01-08_to_2024-01-15" {
		t.Fatalf("fetched windows %v; the existing chunk must not be refetched", fetcher.fetched)
	}
	if _, ok := store.objects["cashless_2024-01-08_to_2024-01-15.csv"]; !ok {
		t.Fatal("fetched chunk was not persisted")
	}
}

func TestBackfillFetchFailureIsFatal(t *testing.T) {
	store := newMemStore()
	fetcher := &stubFetcher{err: errors.New("boom")}

	summary, err := noSleepBackfill(fetcher, store).Run(context.Background(), day(2024, 1, 1), day(2024, 1, 15), 7)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fetcher.fetched) != 1 {
		t.Fatalf("run continued past a failed chunk: %v", fetcher.fetched)
	}
	if summary.Fetched != 0 || len(store.objects) != 0 {
		t.Fatalf("partial results persisted: %+v %v", summary, store.objects)
	}
}

func TestBackfillEmptyWindowNotPersisted(t *testing.T) {
	store := newMemStore()
	fetcher := &stubFetcher{byWindow: map[string][]vmpaysync.Record{}}

	summary, err := noSleepBackfill(fetcher, store).Run(context.Background(), day(2024, 1, 1), day(2024, 1, 8), 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Fetched != 0 || len(store.objects) != 0 {
		t.Fatalf("empty window persisted: %+v %v", summary, store.objects)
	}
	// A rerun fetches the same window again; emptiness is not memoized.
	if _, err := noSleepBackfill(fetcher, store).Run(context.Background(), day(2024, 1, 1), day(2024, 1, 8), 7); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(fetcher.fetched) != 2 {
		t.Fatalf("fetched %v, want the window twice", fetcher.fetched)
	}
}

func TestBackfillArtifactsRoundTrip(t *testing.T) {
	store := newMemStore()
	fetcher := &stubFetcher{byWindow: map[string][]vmpaysync.Record{
		"2024-01-01_to_2024-01-08": {
			{"id": "10", "occurred_at": "2024-01-02T10:00:00Z", "value": "2.50"},
		},
	}}

	if _, err := noSleepBackfill(fetcher, store).Run(context.Background(), day(2024, 1, 1), day(2024, 1, 8), 7); err != nil {
		t.Fatalf("Run: %v", err)
	}

	batches, err := LoadArtifacts(context.Background(), store, "cashless_")
	if err != nil {
		t.Fatalf("LoadArtifacts: %v", err)
	}
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches = %v", batches)
	}
	if batches[0][0]["value"] != "2.50" {
		t.Fatalf("value = %v", batches[0][0]["value"])
	}
}

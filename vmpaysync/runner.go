package vmpaysync

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/warehouse"
	"github.com/sirupsen/logrus"
)

type feedFetcher interface {
	FetchWindow(ctx context.Context, w Window, pageSize int) ([]Record, error)
	FetchAll(ctx context.Context, endpoint string) ([]Record, error)
}

type upserter interface {
	Upsert(ctx context.Context, kind warehouse.EntityKind, batch []map[string]interface{}) (warehouse.UpsertResult, error)
}

// AuxSyncError is one caught auxiliary-entity failure. It never aborts the
// sibling syncs or the run; the caller reports it.
type AuxSyncError struct {
	Entity string
	Err    error
}

func (e *AuxSyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Entity, e.Err)
}

func (e *AuxSyncError) Unwrap() error {
	return e.Err
}

type RunSummary struct {
	Window        Window
	RecordsSynced int
	EntityCounts  map[string]int
	AuxErrors     []*AuxSyncError
}

// Runner drives one daily sync: the cashless window through the paginator,
// then every auxiliary feed, all through the same upsert path. Fully
// sequential.
type Runner struct {
	Fetcher  feedFetcher
	Engine   upserter
	Log      *logrus.Logger
	PageSize int

	// Snapshot, when set, receives every non-empty fetched feed before it
	// is upserted. The daily CLI uses it to keep local CSV copies.
	Snapshot func(entity string, records []Record) error

	now func() time.Time
}

func NewRunner(fetcher feedFetcher, engine upserter, pageSize int, log *logrus.Logger) *Runner {
	return &Runner{
		Fetcher:  fetcher,
		Engine:   engine,
		Log:      log,
		PageSize: pageSize,
		now:      time.Now,
	}
}

// RunDaily syncs [yesterday 00:00, today 00:00) UTC, or [date, date+1d)
// when an explicit date is supplied. A cashless failure is fatal and
// propagated; auxiliary failures are caught, reported in the summary, and
// do not abort the remaining entities.
func (r *Runner) RunDaily(ctx context.Context, date *time.Time) (*RunSummary, error) {
	var window Window
	if date != nil {
		window = DayWindow(*date)
	} else {
		window = DayWindow(r.now().UTC().AddDate(0, 0, -1))
	}

	summary := &RunSummary{
		Window:       window,
		EntityCounts: map[string]int{},
	}

	r.Log.WithFields(logrus.Fields{
		"start": window.StartParam(),
		"end":   window.EndParam(),
	}).Info("fetching cashless window")

	cashless, err := r.Fetcher.FetchWindow(ctx, window, r.PageSize)
	if err != nil {
		return summary, fmt.Errorf("fetch cashless window %s: %w", window, err)
	}

	if len(cashless) == 0 {
		r.Log.Info("no cashless records in window")
	} else {
		// The API's generic id collides with other entities' id columns;
		// cashless rows key on transaction_id instead.
		RenameField(cashless, "id", "transaction_id")
		r.snapshot("cashless", cashless)

		if _, err := r.Engine.Upsert(ctx, warehouse.EntityCashless, cashless); err != nil {
			return summary, fmt.Errorf("upsert cashless: %w", err)
		}
		summary.EntityCounts["cashless"] = len(cashless)
		summary.RecordsSynced += len(cashless)
	}

	for _, kind := range warehouse.AuxiliaryKinds {
		count, err := r.syncAuxiliary(ctx, kind)
		if err != nil {
			auxErr := &AuxSyncError{Entity: kind.String(), Err: err}
			summary.AuxErrors = append(summary.AuxErrors, auxErr)
			r.Log.WithFields(logrus.Fields{"entity": kind.String()}).WithError(err).Error("auxiliary sync failed")
			continue
		}
		summary.EntityCounts[kind.String()] = count
		summary.RecordsSynced += count
	}

	r.Log.WithFields(logrus.Fields{
		"records": summary.RecordsSynced,
		"errors":  len(summary.AuxErrors),
	}).Info("daily sync finished")
	return summary, nil
}

// syncAuxiliary refreshes one small fetch-all feed through the same upsert
// path the cashless batch uses.
func (r *Runner) syncAuxiliary(ctx context.Context, kind warehouse.EntityKind) (int, error) {
	records, err := r.Fetcher.FetchAll(ctx, endpointFor(kind))
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	r.snapshot(kind.String(), records)
	if _, err := r.Engine.Upsert(ctx, kind, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// snapshot failures never block the sync; the warehouse stays the source
// of truth.
func (r *Runner) snapshot(entity string, records []Record) {
	if r.Snapshot == nil {
		return
	}
	if err := r.Snapshot(entity, records); err != nil {
		r.Log.WithFields(logrus.Fields{"entity": entity}).WithError(err).Warn("snapshot write failed")
	}
}

func endpointFor(kind warehouse.EntityKind) string {
	if kind == warehouse.EntityCashless {
		return CashlessEndpoint
	}
	return kind.String()
}

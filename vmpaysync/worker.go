package vmpaysync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/models"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/warehouse"
	"github.com/bsm/redislock"
)

const syncLockKey = "vmpay:daily-sync"

// ProcessSyncRun executes one queued sync run end to end: claim the run
// row, hold the single-flight lock, drive the daily sync, and record the
// outcome. Called from the Pub/Sub push endpoint and from inline triggers.
func ProcessSyncRun(ctx context.Context, cfg *config.Config, payload SyncPubSubPayload) error {
	if payload.RunId == 0 {
		return errors.New("invalid payload")
	}

	log := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return errors.New("database not connected")
	}

	var run models.SyncRun
	if err := db.WithContext(ctx).Where("id = ?", payload.RunId).Take(&run).Error; err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		// Pub/Sub redelivery of a finished run.
		return nil
	}

	// Sync execution is strictly sequential; the lock enforces that across
	// service instances.
	if locker := config.GetRedisLock(); locker != nil {
		ttl := time.Duration(cfg.SyncLockTTLSeconds) * time.Second
		lock, err := locker.Obtain(ctx, syncLockKey, ttl, nil)
		if err == redislock.ErrNotObtained {
			return errors.New("another sync run is already in progress")
		}
		if err != nil {
			return err
		}
		defer lock.Release(context.Background())
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	var date *time.Time
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			finishRun(ctx, &run, startedAt, nil, err)
			return err
		}
		parsed = parsed.UTC()
		date = &parsed
	}

	wh, err := warehouse.NewBigQueryClient(ctx, cfg)
	if err != nil {
		finishRun(ctx, &run, startedAt, nil, err)
		return err
	}
	defer wh.Close()

	runner := NewRunner(
		NewClient(cfg),
		warehouse.NewEngine(wh, cfg.BigQueryDatasetID, log),
		cfg.PageSize,
		log,
	)

	summary, runErr := runner.RunDaily(ctx, date)

	for _, auxErr := range summary.AuxErrors {
		_ = models.CreateSyncRunError(ctx, db, run.ID, auxErr.Entity, "sync_failed", auxErr.Err.Error(), true)
	}

	finishRun(ctx, &run, startedAt, summary, runErr)
	return runErr
}

func finishRun(ctx context.Context, run *models.SyncRun, startedAt *time.Time, summary *RunSummary, runErr error) {
	db := config.GetDB()
	if db == nil {
		return
	}

	finishedAt := time.Now()
	status := models.SyncRunStatusSuccess
	updates := map[string]interface{}{
		"finished_at": finishedAt,
		"duration_ms": finishedAt.Sub(*startedAt).Milliseconds(),
	}

	if runErr != nil {
		status = models.SyncRunStatusFailed
	}
	if summary != nil {
		if runErr == nil && len(summary.AuxErrors) > 0 {
			status = models.SyncRunStatusPartial
		}
		statsJSON, _ := json.Marshal(summary.EntityCounts)
		windowStart := summary.Window.Start
		windowEnd := summary.Window.End
		updates["records_synced"] = summary.RecordsSynced
		updates["error_count"] = len(summary.AuxErrors)
		updates["stats_json"] = statsJSON
		updates["window_start"] = &windowStart
		updates["window_end"] = &windowEnd
	}
	updates["status"] = status

	_ = db.WithContext(ctx).Model(run).Updates(updates).Error
}

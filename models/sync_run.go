package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual   = "manual"
	SyncTriggeredSchedule = "schedule"
	SyncTriggeredBackfill = "backfill"
)

// SyncRun is one execution of the daily warehouse sync. The warehouse itself
// carries no run metadata, so history lives here.
type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	WindowStart   *time.Time `json:"window_start"`
	WindowEnd     *time.Time `json:"window_end"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRunError is one caught per-entity failure inside a run. Only auxiliary
// entity failures land here; a cashless failure fails the whole run.
type SyncRunError struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	SyncRunId  uint      `gorm:"index;not null" json:"sync_run_id"`
	EntityType string    `gorm:"size:50;not null" json:"entity_type"`
	ErrorCode  string    `gorm:"size:50" json:"error_code"`
	Message    string    `gorm:"type:text" json:"message"`
	Retryable  bool      `json:"retryable"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&SyncRun{},
		&SyncRunError{},
	)
}

func CreateSyncRun(ctx context.Context, db *gorm.DB, triggeredBy string, windowStart, windowEnd *time.Time) (*SyncRun, error) {
	run := &SyncRun{
		Status:      SyncRunStatusQueued,
		TriggeredBy: triggeredBy,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func CreateSyncRunError(ctx context.Context, db *gorm.DB, runId uint, entityType string, code string, message string, retryable bool) error {
	errRec := SyncRunError{
		SyncRunId:  runId,
		EntityType: entityType,
		ErrorCode:  code,
		Message:    message,
		Retryable:  retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}

package vmpaysync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
	"bitbucket.org/mmdatafocus/vmpay_warehouse/models"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

func TriggerSyncHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
			return
		}

		var windowStart, windowEnd *time.Time
		if req.Date != "" {
			day, _ := time.Parse("2006-01-02", req.Date)
			w := DayWindow(day.UTC())
			windowStart, windowEnd = &w.Start, &w.End
		}

		run, err := models.CreateSyncRun(c.Request.Context(), db, models.SyncTriggeredManual, windowStart, windowEnd)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		payload := SyncPubSubPayload{RunId: run.ID, Date: req.Date}
		if envBoolDefault("VMPAY_SYNC_INLINE", false) {
			go func() {
				_ = ProcessSyncRun(context.Background(), cfg, payload)
			}()
		} else if err := PublishSyncRun(c.Request.Context(), cfg, payload); err != nil {
			config.GetLogger().WithError(err).Error("publish sync run failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue sync run"})
			return
		}

		c.JSON(http.StatusOK, TriggerSyncResponse{RunId: run.ID, Status: run.Status})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		var runs []models.SyncRun
		if err := db.WithContext(c.Request.Context()).
			Order("id desc").
			Limit(limit).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		var run models.SyncRun
		if err := db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.SyncRunError
		if err := db.WithContext(c.Request.Context()).
			Where("sync_run_id = ?", run.ID).
			Order("id desc").
			Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Errors:          mapErrors(errs),
		})
	}
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		TriggeredBy:   run.TriggeredBy,
		WindowStart:   formatTime(run.WindowStart),
		WindowEnd:     formatTime(run.WindowEnd),
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
	}
}

func mapErrors(errs []models.SyncRunError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, SyncErrorResponse{
			ID:         e.ID,
			EntityType: e.EntityType,
			ErrorCode:  e.ErrorCode,
			Message:    e.Message,
			Retryable:  e.Retryable,
		})
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

package vmpaysync

// TriggerSyncRequest is the body of a manual daily-sync trigger. Date is
// optional; empty means yesterday's window.
type TriggerSyncRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type TriggerSyncResponse struct {
	RunId  uint   `json:"runId"`
	Status string `json:"status"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	TriggeredBy   string  `json:"triggeredBy"`
	WindowStart   *string `json:"windowStart"`
	WindowEnd     *string `json:"windowEnd"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId uint   `json:"run_id"`
	Date  string `json:"date"`
}

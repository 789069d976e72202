package model

import "time"

// DeliveryJob is the persisted record of one logical delivery intent.
// It is mutated only by the orchestrator; Logs are append-only.
type DeliveryJob struct {
	ID              string          `json:"id"`
	ReleaseID       string          `json:"releaseId"`
	TargetID        string          `json:"targetId"`
	TargetName      string          `json:"targetName,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey"`
	MessageType     string          `json:"messageType"`
	MessageSubType  MessageSubType  `json:"messageSubType"`
	ERNMessageID    string          `json:"ernMessageId"`
	ERNXML          string          `json:"ernXml,omitempty"`
	Priority        string          `json:"priority,omitempty"`
	TestMode        bool            `json:"testMode"`
	RequestedBy     string          `json:"requestedBy,omitempty"`
	Status          JobStatus       `json:"status"`
	Attempts        []AttemptRecord `json:"attempts"`
	Logs            []LogEntry      `json:"logs,omitempty"`
	Receipt         *Receipt        `json:"receipt,omitempty"`
	Error           *string         `json:"error,omitempty"`
	ScheduledAt     time.Time       `json:"scheduledAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	TotalDurationMs int64           `json:"totalDurationMs"`
}

// NextAttemptNumber is the attempt number the next execution will carry.
func (j *DeliveryJob) NextAttemptNumber() int {
	return len(j.Attempts) + 1
}

// AttemptRecord describes one failed execution of a job.
type AttemptRecord struct {
	AttemptNumber int       `json:"attemptNumber"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Status        JobStatus `json:"status"`
	Error         string    `json:"error"`
}

// LogEntry is one line of a job's audit trail.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      LogLevel       `json:"level"`
	Step       string         `json:"step"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs *int64         `json:"durationMs,omitempty"`
}

// Receipt is produced only when a delivery succeeds.
type Receipt struct {
	Acknowledgment   string          `json:"acknowledgment"`
	AcknowledgmentID string          `json:"acknowledgmentId,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Files            []DeliveredFile `json:"files"`
	MessageSubType   MessageSubType  `json:"messageSubType"`
	DSPMessageID     string          `json:"dspMessageId,omitempty"`
	BytesTransferred int64           `json:"bytesTransferred"`
}

// HistoryRecord is appended for every non-test delivery that completes.
type HistoryRecord struct {
	JobID            string         `json:"jobId"`
	ReleaseID        string         `json:"releaseId"`
	TargetID         string         `json:"targetId"`
	TargetName       string         `json:"targetName"`
	MessageSubType   MessageSubType `json:"messageSubType"`
	ERNMessageID     string         `json:"ernMessageId"`
	FileCount        int            `json:"fileCount"`
	BytesTransferred int64          `json:"bytesTransferred"`
	DeliveredAt      time.Time      `json:"deliveredAt"`
}

// Lock is the idempotency guard record for one delivery intent.
type Lock struct {
	LockID          string     `json:"lockId"`
	Status          LockStatus `json:"status"`
	AcquiredAt      time.Time  `json:"acquiredAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	Attempt         int        `json:"attempt"`
	OwnerInstanceID string     `json:"ownerInstanceId"`
	Result          *Receipt   `json:"result,omitempty"`
}

package model

import "time"

// TriggerDeliveryRequest asks for a release to be delivered to a target.
type TriggerDeliveryRequest struct {
	ReleaseID      string         `json:"releaseId" validate:"required"`
	TargetID       string         `json:"targetId" validate:"required"`
	MessageType    string         `json:"messageType" validate:"omitempty"`
	MessageSubType MessageSubType `json:"messageSubType" validate:"required,oneof=Initial Update Takedown"`
	ERNMessageID   string         `json:"ernMessageId" validate:"required,max=128"`
	ERNXML         string         `json:"ernXml" validate:"required"`
	Priority       string         `json:"priority" validate:"omitempty,oneof=low normal high"`
	TestMode       bool           `json:"testMode"`
	ScheduledAt    *time.Time     `json:"scheduledAt" validate:"omitempty"`
}

// TriggerDeliveryResponse is returned by the synchronous trigger entry point.
type TriggerDeliveryResponse struct {
	Code           TriggerCode `json:"code"`
	JobID          string      `json:"jobId,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	Status         JobStatus   `json:"status,omitempty"`
	Receipt        *Receipt    `json:"receipt,omitempty"`
	Message        string      `json:"message,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// DeliveryStatusResponse is the public view of a job without its log list.
type DeliveryStatusResponse struct {
	JobID           string          `json:"jobId"`
	ReleaseID       string          `json:"releaseId"`
	TargetID        string          `json:"targetId"`
	Status          JobStatus       `json:"status"`
	MessageSubType  MessageSubType  `json:"messageSubType"`
	Attempts        []AttemptRecord `json:"attempts"`
	Error           *string         `json:"error,omitempty"`
	ScheduledAt     time.Time       `json:"scheduledAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	TotalDurationMs int64           `json:"totalDurationMs"`
}

// DeliveryCancelResponse is returned when a queued job is cancelled.
type DeliveryCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

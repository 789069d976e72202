package model

// WebSocket message types
const (
	WSMessageTypeLog      = "log"
	WSMessageTypeStatus   = "status"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSLogMessage carries one appended audit log entry
type WSLogMessage struct {
	Type  string   `json:"type"`
	JobID string   `json:"jobId"`
	Entry LogEntry `json:"entry"`
}

// WSStatusMessage represents a status transition
type WSStatusMessage struct {
	Type         string           `json:"type"`
	JobID        string           `json:"jobId"`
	Status       JobStatus        `json:"status"`
	Notification NotificationType `json:"notification,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type    string   `json:"type"`
	JobID   string   `json:"jobId"`
	Receipt *Receipt `json:"receipt"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

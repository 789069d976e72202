package model

// Delivery protocols
type Protocol string

const (
	ProtocolFTP     Protocol = "FTP"
	ProtocolSFTP    Protocol = "SFTP"
	ProtocolS3      Protocol = "S3"
	ProtocolAzure   Protocol = "Azure"
	ProtocolAPI     Protocol = "API"
	ProtocolDSP     Protocol = "DSP"
	ProtocolStorage Protocol = "Storage"
)

// ValidProtocols is the closed set of transports a target may use.
var ValidProtocols = []Protocol{
	ProtocolFTP, ProtocolSFTP, ProtocolS3, ProtocolAzure,
	ProtocolAPI, ProtocolDSP, ProtocolStorage,
}

// Target types
type TargetType string

const (
	TargetTypeDSP        TargetType = "DSP"
	TargetTypeAggregator TargetType = "Aggregator"
	TargetTypeTest       TargetType = "Test"
)

// DDEX message subtypes
type MessageSubType string

const (
	MessageSubTypeInitial  MessageSubType = "Initial"
	MessageSubTypeUpdate   MessageSubType = "Update"
	MessageSubTypeTakedown MessageSubType = "Takedown"
)

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Audit log levels
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Package file types
type FileType string

const (
	FileTypeAudio FileType = "audio"
	FileTypeImage FileType = "image"
	FileTypeXML   FileType = "xml"
)

// Lock status
type LockStatus string

const (
	LockStatusProcessing LockStatus = "processing"
	LockStatusCompleted  LockStatus = "completed"
	LockStatusFailed     LockStatus = "failed"
)

// Notification types
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationRetry   NotificationType = "retry"
	NotificationFailed  NotificationType = "failed"
)

// Trigger result codes
type TriggerCode string

const (
	TriggerAccepted  TriggerCode = "accepted"
	TriggerDuplicate TriggerCode = "duplicate"
	TriggerRejected  TriggerCode = "rejected"
	TriggerError     TriggerCode = "error"
)

// API auth schemes
type AuthType string

const (
	AuthTypeBearer AuthType = "Bearer"
	AuthTypeBasic  AuthType = "Basic"
	AuthTypeOAuth2 AuthType = "OAuth2"
	AuthTypeNone   AuthType = "None"
)

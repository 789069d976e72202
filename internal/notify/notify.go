// Package notify delivers job outcome notifications to external observers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/websocket"
)

// Sink receives success, retry and failed notifications for a job.
type Sink interface {
	Send(ctx context.Context, job *model.DeliveryJob, kind model.NotificationType, data map[string]any) error
}

// Nop discards every notification.
type Nop struct{}

// Send implements Sink.
func (Nop) Send(context.Context, *model.DeliveryJob, model.NotificationType, map[string]any) error {
	return nil
}

// Multi fans a notification out to several sinks and joins their errors.
type Multi []Sink

// Send implements Sink.
func (m Multi) Send(ctx context.Context, job *model.DeliveryJob, kind model.NotificationType, data map[string]any) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, job, kind, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Payload is the JSON body posted by WebhookSink.
type Payload struct {
	Type      model.NotificationType `json:"type"`
	JobID     string                 `json:"jobId"`
	ReleaseID string                 `json:"releaseId"`
	TargetID  string                 `json:"targetId"`
	Target    string                 `json:"targetName,omitempty"`
	Status    model.JobStatus        `json:"status"`
	Data      map[string]any         `json:"data,omitempty"`
	SentAt    time.Time              `json:"sentAt"`
}

// WebhookSink posts notifications as JSON to a fixed URL.
type WebhookSink struct {
	httpClient *http.Client
	url        string
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{httpClient: &http.Client{Timeout: timeout}, url: url}
}

// Send implements Sink.
func (w *WebhookSink) Send(ctx context.Context, job *model.DeliveryJob, kind model.NotificationType, data map[string]any) error {
	body, err := json.Marshal(Payload{
		Type:      kind,
		JobID:     job.ID,
		ReleaseID: job.ReleaseID,
		TargetID:  job.TargetID,
		Target:    job.TargetName,
		Status:    job.Status,
		Data:      data,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook error (status %d)", resp.StatusCode)
	}
	return nil
}

// HubSink forwards notifications to WebSocket subscribers of the job.
type HubSink struct {
	hub *websocket.Hub
}

// NewHubSink creates a hub sink.
func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

// Send implements Sink.
func (h *HubSink) Send(_ context.Context, job *model.DeliveryJob, kind model.NotificationType, data map[string]any) error {
	switch kind {
	case model.NotificationSuccess:
		h.hub.BroadcastComplete(job.ID, job.Receipt)
	case model.NotificationFailed:
		msg := "delivery failed"
		if job.Error != nil {
			msg = *job.Error
		}
		h.hub.BroadcastError(job.ID, "DELIVERY_FAILED", msg)
	default:
		h.hub.BroadcastStatus(job.ID, job.Status, kind)
	}
	return nil
}

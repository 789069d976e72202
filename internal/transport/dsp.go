package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// DSPAdapter notifies a DSP ingestion API of a package by reference. Media
// bytes are never transferred; the DSP pulls assets from their source URLs.
type DSPAdapter struct {
	opts Options
}

// NewDSPAdapter creates a DSP-pointer adapter.
func NewDSPAdapter(opts Options) *DSPAdapter {
	return &DSPAdapter{opts: opts.withDefaults()}
}

type dspDelivery struct {
	DeliveryID     string               `json:"deliveryId"`
	DistributorID  string               `json:"distributorId,omitempty"`
	UPC            string               `json:"upc"`
	MessageID      string               `json:"messageId"`
	MessageType    string               `json:"messageType"`
	MessageSubType model.MessageSubType `json:"messageSubType"`
	TestMode       bool                 `json:"testMode"`
	ERN            string               `json:"ern"`
	Assets         []apiFileRef         `json:"assets"`
}

// Deliver implements Adapter.
func (a *DSPAdapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := time.Now()
	conn := target.Connection
	if conn.Endpoint == "" {
		return nil, model.NewValidationError("connection.endpoint", "DSP endpoint is required")
	}

	control, ok := pkg.ControlFile()
	if !ok {
		return nil, model.NewValidationError("files", "package has no control message")
	}

	payload := dspDelivery{
		DeliveryID:     pkg.DeliveryID,
		DistributorID:  pkg.DistributorID,
		UPC:            pkg.UPC,
		MessageID:      pkg.Metadata.MessageID,
		MessageType:    pkg.Metadata.MessageType,
		MessageSubType: pkg.Metadata.MessageSubType,
		TestMode:       pkg.Metadata.TestMode,
		ERN:            string(control.Content),
		Assets:         []apiFileRef{},
	}
	for _, f := range pkg.Files {
		if f.Type == model.FileTypeXML {
			continue
		}
		payload.Assets = append(payload.Assets, apiFileRef{Name: f.Name, Type: f.Type, URL: f.URL, MD5: f.MD5Hash, Size: f.Size})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, transportErr(model.ProtocolDSP, "", fmt.Errorf("failed to marshal delivery: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportErr(model.ProtocolDSP, "", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range conn.Headers {
		req.Header.Set(k, v)
	}
	if err := authorize(ctx, a.opts.HTTPClient, req, conn.Auth); err != nil {
		if model.IsValidation(err) {
			return nil, err
		}
		return nil, transportErr(model.ProtocolDSP, "", err)
	}

	ack, status, err := send(a.opts.HTTPClient, req)
	if err != nil {
		return nil, transportErr(model.ProtocolDSP, control.Name, err)
	}

	result := &model.DeliveryResult{
		Success:          true,
		MessageID:        pkg.Metadata.MessageID,
		Acknowledgment:   fmt.Sprintf("HTTP %d", status),
		AcknowledgmentID: ack.ackID(),
		BytesTransferred: int64(len(body)),
		DurationMs:       time.Since(start).Milliseconds(),
	}
	if ack.Status != "" {
		result.Acknowledgment = ack.Status
	}
	for _, f := range pkg.Files {
		location := f.URL
		if f.Type == model.FileTypeXML {
			location = conn.Endpoint
		}
		result.Files = append(result.Files, deliveredFile(f, location))
	}
	return result, nil
}

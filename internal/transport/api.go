package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// APIAdapter posts the control message and package metadata as a multipart
// form to an HTTP endpoint.
type APIAdapter struct {
	opts Options
}

// NewAPIAdapter creates an API adapter.
func NewAPIAdapter(opts Options) *APIAdapter {
	return &APIAdapter{opts: opts.withDefaults()}
}

type apiMetadata struct {
	DeliveryID     string               `json:"deliveryId"`
	UPC            string               `json:"upc"`
	MessageID      string               `json:"messageId"`
	MessageType    string               `json:"messageType"`
	MessageSubType model.MessageSubType `json:"messageSubType"`
	TestMode       bool                 `json:"testMode"`
	DistributorID  string               `json:"distributorId,omitempty"`
	Files          []apiFileRef         `json:"files"`
}

type apiFileRef struct {
	Name string         `json:"name"`
	Type model.FileType `json:"type"`
	URL  string         `json:"url,omitempty"`
	MD5  string         `json:"md5"`
	Size int64          `json:"size"`
}

// endpointAck is the loose acknowledgment shape accepted from API and DSP
// endpoints.
type endpointAck struct {
	ID               string `json:"id"`
	MessageID        string `json:"messageId"`
	AcknowledgmentID string `json:"acknowledgmentId"`
	Status           string `json:"status"`
	Message          string `json:"message"`
}

func (a endpointAck) ackID() string {
	switch {
	case a.AcknowledgmentID != "":
		return a.AcknowledgmentID
	case a.MessageID != "":
		return a.MessageID
	}
	return a.ID
}

// Deliver implements Adapter.
func (a *APIAdapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := time.Now()
	conn := target.Connection
	if conn.Endpoint == "" {
		return nil, model.NewValidationError("connection.endpoint", "API endpoint is required")
	}

	control, ok := pkg.ControlFile()
	if !ok {
		return nil, model.NewValidationError("files", "package has no control message")
	}

	body, formType, err := a.buildForm(pkg, control)
	if err != nil {
		return nil, transportErr(model.ProtocolAPI, "", err)
	}

	method := conn.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), conn.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportErr(model.ProtocolAPI, "", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", formType)
	for k, v := range conn.Headers {
		req.Header.Set(k, v)
	}
	if err := authorize(ctx, a.opts.HTTPClient, req, conn.Auth); err != nil {
		if model.IsValidation(err) {
			return nil, err
		}
		return nil, transportErr(model.ProtocolAPI, "", err)
	}

	ack, status, err := send(a.opts.HTTPClient, req)
	if err != nil {
		return nil, transportErr(model.ProtocolAPI, control.Name, err)
	}

	result := &model.DeliveryResult{
		Success:          true,
		MessageID:        pkg.Metadata.MessageID,
		Acknowledgment:   fmt.Sprintf("HTTP %d", status),
		AcknowledgmentID: ack.ackID(),
		DurationMs:       time.Since(start).Milliseconds(),
	}
	if ack.Status != "" {
		result.Acknowledgment = ack.Status
	}
	result.Files = append(result.Files, deliveredFile(control, conn.Endpoint))
	result.BytesTransferred = int64(len(body))
	return result, nil
}

func (a *APIAdapter) buildForm(pkg *model.DeliveryPackage, control model.PackageFile) ([]byte, string, error) {
	meta := apiMetadata{
		DeliveryID:     pkg.DeliveryID,
		UPC:            pkg.UPC,
		MessageID:      pkg.Metadata.MessageID,
		MessageType:    pkg.Metadata.MessageType,
		MessageSubType: pkg.Metadata.MessageSubType,
		TestMode:       pkg.Metadata.TestMode,
		DistributorID:  pkg.DistributorID,
	}
	for _, f := range pkg.Files {
		meta.Files = append(meta.Files, apiFileRef{Name: f.Name, Type: f.Type, URL: f.URL, MD5: f.MD5Hash, Size: f.Size})
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="message"; filename=%q`, control.Name))
	header.Set("Content-Type", "application/xml")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message part: %w", err)
	}
	if _, err := part.Write(control.Content); err != nil {
		return nil, "", fmt.Errorf("failed to write message part: %w", err)
	}

	if err := w.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, "", fmt.Errorf("failed to write metadata part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// send performs req and decodes an optional JSON acknowledgment. Non-2xx
// responses are errors.
func send(client *http.Client, req *http.Request) (endpointAck, int, error) {
	var ack endpointAck

	resp, err := client.Do(req)
	if err != nil {
		return ack, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ack, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ack, resp.StatusCode, fmt.Errorf("endpoint error (status %d): %s", resp.StatusCode, string(respBody))
	}

	// Acknowledgment bodies are optional and free-form.
	_ = json.Unmarshal(respBody, &ack)
	return ack, resp.StatusCode, nil
}

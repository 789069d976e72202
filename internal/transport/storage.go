package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// ObjectStore is the managed bucket behind the Storage protocol.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType, md5Hex string) (string, error)
}

// StorageAdapter writes packages into the managed bucket and optionally
// tells the target about them through a webhook.
type StorageAdapter struct {
	opts  Options
	store ObjectStore
	now   func() time.Time
}

// NewStorageAdapter creates a Storage adapter.
func NewStorageAdapter(opts Options, store ObjectStore) *StorageAdapter {
	return &StorageAdapter{opts: opts.withDefaults(), store: store, now: time.Now}
}

type storageWebhook struct {
	DeliveryID     string                `json:"deliveryId"`
	DistributorID  string                `json:"distributorId"`
	UPC            string                `json:"upc"`
	MessageID      string                `json:"messageId"`
	MessageSubType model.MessageSubType  `json:"messageSubType"`
	Files          []model.DeliveredFile `json:"files"`
}

// Deliver implements Adapter.
func (a *StorageAdapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := a.now()
	if a.store == nil {
		return nil, transportErr(model.ProtocolStorage, "", fmt.Errorf("managed storage is not configured"))
	}

	distributor := pkg.DistributorID
	if distributor == "" {
		distributor = target.DistributorID
	}
	if distributor == "" {
		distributor = target.ID
	}
	// Keyed by job creation so a retry overwrites the objects of an earlier attempt.
	stamp := pkg.CreatedAt
	if stamp.IsZero() {
		stamp = start
	}
	prefix := joinKey(target.Connection.Prefix, fmt.Sprintf("deliveries/%s/%d", distributor, stamp.UnixMilli()))

	log := a.opts.Logger.With(logger.String("delivery_id", pkg.DeliveryID), logger.String("prefix", prefix))
	result := &model.DeliveryResult{MessageID: pkg.Metadata.MessageID}
	for _, f := range pkg.Files {
		key := joinKey(prefix, f.Name)
		location, err := a.store.Put(ctx, key, f.Content, contentType(f), f.MD5Hash)
		if err != nil {
			return nil, transportErr(model.ProtocolStorage, f.Name, err)
		}
		log.Debug("Storage object written", logger.String("key", key), logger.Int64("size", f.Size))
		result.Files = append(result.Files, deliveredFile(f, location))
		result.BytesTransferred += f.Size
	}

	result.Success = true
	result.Acknowledgment = "stored"
	if hook := target.Connection.WebhookURL; hook != "" {
		// The package is already in place; a failed webhook does not fail the delivery.
		if err := a.notify(ctx, hook, pkg, distributor, result.Files); err != nil {
			log.Warn("Storage webhook failed", logger.String("url", hook), logger.Error(err))
		} else {
			result.Acknowledgment = "stored+notified"
		}
	}
	result.DurationMs = a.now().Sub(start).Milliseconds()
	return result, nil
}

func (a *StorageAdapter) notify(ctx context.Context, url string, pkg *model.DeliveryPackage, distributor string, files []model.DeliveredFile) error {
	body, err := json.Marshal(storageWebhook{
		DeliveryID:     pkg.DeliveryID,
		DistributorID:  distributor,
		UPC:            pkg.UPC,
		MessageID:      pkg.Metadata.MessageID,
		MessageSubType: pkg.Metadata.MessageSubType,
		Files:          files,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, _, err = send(a.opts.HTTPClient, req)
	return err
}

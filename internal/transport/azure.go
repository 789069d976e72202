package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

const (
	azureSingleUploadLimit = 5 * 1024 * 1024
	azureBlockSize         = 4 * 1024 * 1024
)

// blobWriter is the subset of the blob service the adapter needs.
type blobWriter interface {
	PutBlob(ctx context.Context, container, name string, data []byte, headers *blob.HTTPHeaders, metadata map[string]*string) error
	PutBlocks(ctx context.Context, container, name string, data []byte, blockSize int64, headers *blob.HTTPHeaders, metadata map[string]*string) error
	URL(container, name string) string
}

type blobWriterFactory func(conn model.Connection) (blobWriter, error)

// AzureAdapter uploads packages into an Azure Blob Storage container.
type AzureAdapter struct {
	opts      Options
	newWriter blobWriterFactory
}

// NewAzureAdapter creates an Azure Blob adapter.
func NewAzureAdapter(opts Options) *AzureAdapter {
	return &AzureAdapter{opts: opts.withDefaults(), newWriter: newAzblobWriter}
}

// Deliver implements Adapter.
func (a *AzureAdapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := time.Now()
	conn := target.Connection
	if conn.AccountName == "" || conn.AccountKey == "" {
		return nil, model.NewValidationError("connection.accountName", "Azure account name and key are required")
	}
	if conn.ContainerName == "" {
		return nil, model.NewValidationError("connection.containerName", "Azure container is required")
	}

	writer, err := a.newWriter(conn)
	if err != nil {
		return nil, transportErr(model.ProtocolAzure, "", err)
	}

	log := a.opts.Logger.With(logger.String("delivery_id", pkg.DeliveryID), logger.String("container", conn.ContainerName))
	result := &model.DeliveryResult{MessageID: pkg.Metadata.MessageID}
	for _, f := range pkg.Files {
		name := joinKey(conn.Prefix, f.Name)
		headers := &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType(f))}
		if raw, err := hex.DecodeString(f.MD5Hash); err == nil && len(raw) > 0 {
			headers.BlobContentMD5 = raw
		}
		metadata := map[string]*string{"md5": to.Ptr(f.MD5Hash)}

		if len(f.Content) <= azureSingleUploadLimit {
			err = writer.PutBlob(ctx, conn.ContainerName, name, f.Content, headers, metadata)
		} else {
			err = writer.PutBlocks(ctx, conn.ContainerName, name, f.Content, azureBlockSize, headers, metadata)
		}
		if err != nil {
			return nil, transportErr(model.ProtocolAzure, f.Name, err)
		}

		log.Debug("Azure blob uploaded", logger.String("blob", name), logger.Int64("size", f.Size))
		result.Files = append(result.Files, deliveredFile(f, writer.URL(conn.ContainerName, name)))
		result.BytesTransferred += f.Size
	}

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

type azblobWriter struct {
	client     *azblob.Client
	serviceURL string
}

func newAzblobWriter(conn model.Connection) (blobWriter, error) {
	cred, err := azblob.NewSharedKeyCredential(conn.AccountName, conn.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid shared key credential: %w", err)
	}

	serviceURL := conn.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", conn.AccountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &azblobWriter{client: client, serviceURL: strings.TrimSuffix(serviceURL, "/")}, nil
}

func (w *azblobWriter) PutBlob(ctx context.Context, container, name string, data []byte, headers *blob.HTTPHeaders, metadata map[string]*string) error {
	bb := w.client.ServiceClient().NewContainerClient(container).NewBlockBlobClient(name)
	_, err := bb.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		HTTPHeaders: headers,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func (w *azblobWriter) PutBlocks(ctx context.Context, container, name string, data []byte, blockSize int64, headers *blob.HTTPHeaders, metadata map[string]*string) error {
	_, err := w.client.UploadBuffer(ctx, container, name, data, &azblob.UploadBufferOptions{
		BlockSize:   blockSize,
		HTTPHeaders: headers,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("block upload failed: %w", err)
	}
	return nil
}

func (w *azblobWriter) URL(container, name string) string {
	return w.serviceURL + "/" + container + "/" + name
}

package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

const s3PartSize = 5 * 1024 * 1024

type s3ClientFactory func(ctx context.Context, conn model.Connection) (manager.UploadAPIClient, error)

// S3Adapter uploads packages to an S3 bucket (or any S3-compatible endpoint)
// using the credentials of the target.
type S3Adapter struct {
	opts      Options
	newClient s3ClientFactory
}

// NewS3Adapter creates an S3 adapter.
func NewS3Adapter(opts Options) *S3Adapter {
	return &S3Adapter{opts: opts.withDefaults(), newClient: newS3Client}
}

func newS3Client(ctx context.Context, conn model.Connection) (manager.UploadAPIClient, error) {
	region := conn.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if conn.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conn.AccessKeyID, conn.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if conn.Endpoint != "" {
			o.BaseEndpoint = aws.String(conn.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Deliver implements Adapter.
func (a *S3Adapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := time.Now()
	conn := target.Connection
	if conn.Bucket == "" {
		return nil, model.NewValidationError("connection.bucket", "S3 bucket is required")
	}

	client, err := a.newClient(ctx, conn)
	if err != nil {
		return nil, transportErr(model.ProtocolS3, "", err)
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s3PartSize
	})

	log := a.opts.Logger.With(logger.String("delivery_id", pkg.DeliveryID), logger.String("bucket", conn.Bucket))
	result := &model.DeliveryResult{MessageID: pkg.Metadata.MessageID}
	for _, f := range pkg.Files {
		key := joinKey(conn.Prefix, f.Name)

		location, err := a.upload(ctx, client, uploader, conn.Bucket, key, f)
		if err != nil {
			return nil, transportErr(model.ProtocolS3, f.Name, err)
		}

		log.Debug("S3 object uploaded", logger.String("key", key), logger.Int64("size", f.Size))
		result.Files = append(result.Files, deliveredFile(f, location))
		result.BytesTransferred += f.Size
	}

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (a *S3Adapter) upload(ctx context.Context, client manager.UploadAPIClient, uploader *manager.Uploader, bucket, key string, f model.PackageFile) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(f.Content),
		ContentType: aws.String(contentType(f)),
		Metadata:    map[string]string{"md5": f.MD5Hash},
	}

	if int64(len(f.Content)) > a.opts.MultipartThreshold {
		out, err := uploader.Upload(ctx, input)
		if err != nil {
			return "", fmt.Errorf("multipart upload failed: %w", err)
		}
		if out.Location != "" {
			return out.Location, nil
		}
		return fmt.Sprintf("s3://%s/%s", bucket, key), nil
	}

	if raw, err := hex.DecodeString(f.MD5Hash); err == nil && len(raw) > 0 {
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(raw))
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func contentType(f model.PackageFile) string {
	switch {
	case f.Type == model.FileTypeXML:
		return "application/xml"
	case strings.HasSuffix(f.Name, ".png"):
		return "image/png"
	case strings.HasSuffix(f.Name, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(f.Name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(f.Name, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(f.Name, ".wav"):
		return "audio/wav"
	}
	return "application/octet-stream"
}

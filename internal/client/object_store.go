package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/daddykev/stardust-distro-sub000/internal/config"
)

// ObjectAPI is the subset of the S3 client the managed store calls.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectStore is the managed, S3-compatible bucket (R2 by default) that
// Storage-protocol deliveries are written into.
type ObjectStore struct {
	api        ObjectAPI
	bucketName string
	publicURL  string
}

// NewObjectStore creates the managed bucket client
func NewObjectStore(cfg *config.StorageConfig) (*ObjectStore, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("storage configuration incomplete")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &ObjectStore{
		api:        s3Client,
		bucketName: cfg.BucketName,
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

// NewObjectStoreWithAPI wraps an existing client.
func NewObjectStoreWithAPI(api ObjectAPI, bucketName, publicURL string) *ObjectStore {
	return &ObjectStore{api: api, bucketName: bucketName, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// Put writes an object with its MD5 attached and returns its public URL
func (c *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType, md5Hex string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if md5Hex != "" {
		input.Metadata = map[string]string{"md5": md5Hex}
		if raw, err := hex.DecodeString(md5Hex); err == nil {
			input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(raw))
		}
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to storage: %w", err)
	}

	return c.GetPublicURL(key), nil
}

// GetPublicURL returns the public URL for a key
func (c *ObjectStore) GetPublicURL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucketName, key)
}

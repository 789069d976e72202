package transport

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

type fakeS3 struct {
	mu        sync.Mutex
	puts      []*s3.PutObjectInput
	parts     int
	created   int
	completed int
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = io.Copy(io.Discard, in.Body)
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = io.Copy(io.Discard, in.Body)
	f.parts++
	return &s3.UploadPartOutput{ETag: aws.String("part-etag")}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	return &s3.CompleteMultipartUploadOutput{Location: aws.String("https://bucket.s3/big")}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func s3AdapterWith(client *fakeS3) *S3Adapter {
	a := NewS3Adapter(Options{})
	a.newClient = func(ctx context.Context, conn model.Connection) (manager.UploadAPIClient, error) {
		return client, nil
	}
	return a
}

func TestS3_SinglePutCarriesContentMD5AndMetadata(t *testing.T) {
	client := &fakeS3{}
	content := []byte("flac-bytes")
	pkg := testPackage(packageFile("123456789012_01_001.flac", model.FileTypeAudio, content))

	target := &model.DeliveryTarget{Connection: model.Connection{Bucket: "ingest", Prefix: "label/"}}
	res, err := s3AdapterWith(client).Deliver(context.Background(), target, pkg)
	require.NoError(t, err)

	require.Len(t, client.puts, 2)
	put := client.puts[1]
	assert.Equal(t, "ingest", aws.ToString(put.Bucket))
	assert.Equal(t, "label/123456789012_01_001.flac", aws.ToString(put.Key))
	assert.Equal(t, "audio/flac", aws.ToString(put.ContentType))

	sum := md5.Sum(content)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), aws.ToString(put.ContentMD5))
	assert.Equal(t, pkg.Files[1].MD5Hash, put.Metadata["md5"])

	assert.Equal(t, "s3://ingest/label/123456789012_01_001.flac", res.Files[1].Location)
	assert.Zero(t, client.created)
}

func TestS3_LargeFileUsesMultipart(t *testing.T) {
	client := &fakeS3{}
	big := bytes.Repeat([]byte{0x42}, 11*1024*1024)
	pkg := testPackage(packageFile("123456789012_01_001.wav", model.FileTypeAudio, big))

	res, err := s3AdapterWith(client).Deliver(context.Background(),
		&model.DeliveryTarget{Connection: model.Connection{Bucket: "ingest"}}, pkg)
	require.NoError(t, err)

	assert.Len(t, client.puts, 1, "only the control file goes through a single PUT")
	assert.Equal(t, 1, client.created)
	assert.Equal(t, 3, client.parts)
	assert.Equal(t, 1, client.completed)
	assert.Equal(t, int64(len(big)+len("<NewReleaseMessage/>")), res.BytesTransferred)
}

func TestS3_MissingBucketIsValidation(t *testing.T) {
	_, err := s3AdapterWith(&fakeS3{}).Deliver(context.Background(), &model.DeliveryTarget{}, testPackage())
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

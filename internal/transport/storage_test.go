package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

type putCall struct {
	key         string
	contentType string
	md5         string
	size        int
}

type fakeObjectStore struct {
	puts   []putCall
	failOn string
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte, contentType, md5Hex string) (string, error) {
	if f.failOn != "" && len(key) >= len(f.failOn) && key[len(key)-len(f.failOn):] == f.failOn {
		return "", errors.New("bucket unavailable")
	}
	f.puts = append(f.puts, putCall{key: key, contentType: contentType, md5: md5Hex, size: len(data)})
	return "https://cdn.example.com/" + key, nil
}

func fixedStorageAdapter(store ObjectStore) *StorageAdapter {
	a := NewStorageAdapter(Options{}, store)
	a.now = func() time.Time { return time.UnixMilli(1760000000000) }
	return a
}

func TestStorage_WritesUnderDistributorPrefix(t *testing.T) {
	store := &fakeObjectStore{}
	pkg := testPackage(packageFile("123456789012.jpg", model.FileTypeImage, []byte("jpeg")))

	res, err := fixedStorageAdapter(store).Deliver(context.Background(),
		&model.DeliveryTarget{ID: "tgt-1", Protocol: model.ProtocolStorage}, pkg)
	require.NoError(t, err)

	require.Len(t, store.puts, 2)
	assert.Equal(t, "deliveries/dist-1/1760000000000/MSG-1.xml", store.puts[0].key)
	assert.Equal(t, "application/xml", store.puts[0].contentType)
	assert.Equal(t, "deliveries/dist-1/1760000000000/123456789012.jpg", store.puts[1].key)
	assert.Equal(t, "image/jpeg", store.puts[1].contentType)

	assert.True(t, res.Success)
	assert.Equal(t, "stored", res.Acknowledgment)
	assert.Equal(t, int64(len("<NewReleaseMessage/>")+4), res.BytesTransferred)
	assert.Equal(t, "https://cdn.example.com/deliveries/dist-1/1760000000000/MSG-1.xml", res.Files[0].Location)
}

func TestStorage_RetryWritesUnderSamePrefix(t *testing.T) {
	store := &fakeObjectStore{}
	a := NewStorageAdapter(Options{}, store)
	pkg := testPackage()
	pkg.CreatedAt = time.UnixMilli(1750000000000)
	target := &model.DeliveryTarget{ID: "tgt-1", Protocol: model.ProtocolStorage}

	a.now = func() time.Time { return time.UnixMilli(1760000000000) }
	_, err := a.Deliver(context.Background(), target, pkg)
	require.NoError(t, err)

	a.now = func() time.Time { return time.UnixMilli(1760000900000) }
	_, err = a.Deliver(context.Background(), target, pkg)
	require.NoError(t, err)

	require.Len(t, store.puts, 2)
	assert.Equal(t, "deliveries/dist-1/1750000000000/MSG-1.xml", store.puts[0].key)
	assert.Equal(t, store.puts[0].key, store.puts[1].key)
}

func TestStorage_FailsFastOnFirstError(t *testing.T) {
	store := &fakeObjectStore{failOn: "123456789012_01_001.wav"}
	pkg := testPackage(
		packageFile("123456789012_01_001.wav", model.FileTypeAudio, []byte("a")),
		packageFile("123456789012_01_002.wav", model.FileTypeAudio, []byte("b")),
	)

	_, err := fixedStorageAdapter(store).Deliver(context.Background(), &model.DeliveryTarget{}, pkg)
	require.Error(t, err)

	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "123456789012_01_001.wav", te.File)
	assert.Len(t, store.puts, 1)
}

func TestStorage_PostsWebhook(t *testing.T) {
	var hook storageWebhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&hook))
	}))
	defer srv.Close()

	res, err := fixedStorageAdapter(&fakeObjectStore{}).Deliver(context.Background(),
		&model.DeliveryTarget{Connection: model.Connection{WebhookURL: srv.URL}}, testPackage())
	require.NoError(t, err)

	assert.Equal(t, "stored+notified", res.Acknowledgment)
	assert.Equal(t, "job-1", hook.DeliveryID)
	assert.Equal(t, "dist-1", hook.DistributorID)
	assert.Len(t, hook.Files, 1)
}

func TestStorage_WebhookFailureDoesNotFailDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := fixedStorageAdapter(&fakeObjectStore{}).Deliver(context.Background(),
		&model.DeliveryTarget{Connection: model.Connection{WebhookURL: srv.URL}}, testPackage())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "stored", res.Acknowledgment)
}

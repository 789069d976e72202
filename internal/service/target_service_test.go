package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/store"
)

func TestValidateConnection(t *testing.T) {
	tests := []struct {
		name    string
		target  model.DeliveryTarget
		wantErr bool
	}{
		{"ftp ok", model.DeliveryTarget{Protocol: model.ProtocolFTP, Connection: model.Connection{Host: "h", Username: "u"}}, false},
		{"ftp missing host", model.DeliveryTarget{Protocol: model.ProtocolFTP, Connection: model.Connection{Username: "u"}}, true},
		{"sftp key only", model.DeliveryTarget{Protocol: model.ProtocolSFTP, Connection: model.Connection{Host: "h", Username: "u", PrivateKey: "k"}}, false},
		{"sftp no credentials", model.DeliveryTarget{Protocol: model.ProtocolSFTP, Connection: model.Connection{Host: "h", Username: "u"}}, true},
		{"s3 missing bucket", model.DeliveryTarget{Protocol: model.ProtocolS3}, true},
		{"azure partial", model.DeliveryTarget{Protocol: model.ProtocolAzure, Connection: model.Connection{AccountName: "a"}}, true},
		{"api ok", model.DeliveryTarget{Protocol: model.ProtocolAPI, Connection: model.Connection{Endpoint: "https://x"}}, false},
		{"dsp oauth without token url", model.DeliveryTarget{Protocol: model.ProtocolDSP, Connection: model.Connection{
			Endpoint: "https://x", Auth: &model.APIAuth{Type: model.AuthTypeOAuth2},
		}}, true},
		{"storage", model.DeliveryTarget{Protocol: model.ProtocolStorage}, false},
		{"unknown", model.DeliveryTarget{Protocol: "Gopher"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConnection(&tt.target)
			if tt.wantErr {
				assert.True(t, model.IsValidation(err), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedactMasksSecretsWithoutTouchingOriginal(t *testing.T) {
	target := &model.DeliveryTarget{
		ID: "t", Protocol: model.ProtocolAPI,
		Connection: model.Connection{
			Username: "alice",
			Password: "hunter2",
			Auth:     &model.APIAuth{Type: model.AuthTypeBearer, Credentials: model.AuthCredentials{Token: "tok"}},
		},
	}

	out := Redact(target)
	assert.Equal(t, "alice", out.Connection.Username)
	assert.Equal(t, redacted, out.Connection.Password)
	assert.Equal(t, redacted, out.Connection.Auth.Credentials.Token)
	assert.Empty(t, out.Connection.SecretAccessKey)

	assert.Equal(t, "hunter2", target.Connection.Password)
	assert.Equal(t, "tok", target.Connection.Auth.Credentials.Token)
}

func TestTargetService_PutGetList(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	targets := store.NewTargetStore(rdb)
	svc := NewTargetService(targets)

	_, err := svc.Put(context.Background(), "ftp-1", &model.DeliveryTarget{
		Name: "Label FTP", Protocol: model.ProtocolFTP, Type: model.TargetTypeAggregator, Active: true,
		Connection: model.Connection{Host: "ftp.example.com", Username: "u", Password: "p"},
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), "ftp-1")
	require.NoError(t, err)
	assert.Equal(t, "ftp-1", got.ID)
	assert.Equal(t, redacted, got.Connection.Password)
	assert.False(t, got.UpdatedAt.IsZero())

	stored, err := targets.Get(context.Background(), "ftp-1")
	require.NoError(t, err)
	assert.Equal(t, "p", stored.Connection.Password)

	_, err = svc.Put(context.Background(), "bad", &model.DeliveryTarget{Name: "x", Protocol: model.ProtocolS3})
	assert.True(t, model.IsValidation(err))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrTargetNotFound)
}

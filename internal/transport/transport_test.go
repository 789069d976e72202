package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

func TestRegistry_ValidateReportsMissingProtocols(t *testing.T) {
	r := NewRegistry()
	r.Register(model.ProtocolFTP, NewFTPAdapter(Options{}))

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SFTP")
	assert.NotContains(t, err.Error(), "[FTP")
}

func TestRegistry_DefaultRegistryIsExhaustive(t *testing.T) {
	r := NewDefaultRegistry(Options{}, nil)
	require.NoError(t, r.Validate())

	for _, p := range model.ValidProtocols {
		adapter, err := r.Get(p)
		require.NoError(t, err, p)
		assert.NotNil(t, adapter)
	}
}

func TestRegistry_UnknownProtocolIsValidation(t *testing.T) {
	r := NewDefaultRegistry(Options{}, nil)

	_, err := r.Get(model.Protocol("Gopher"))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestAdapterFunc(t *testing.T) {
	called := false
	var a Adapter = AdapterFunc(func(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
		called = true
		return &model.DeliveryResult{Success: true}, nil
	})

	res, err := a.Deliver(context.Background(), &model.DeliveryTarget{}, testPackage())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, called)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "a.xml", joinKey("", "a.xml"))
	assert.Equal(t, "in/a.xml", joinKey("in", "a.xml"))
	assert.Equal(t, "in/a.xml", joinKey("in//", "a.xml"))
}

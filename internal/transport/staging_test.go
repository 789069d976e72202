package transport

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

func TestStaging_StageVerifiesChecksum(t *testing.T) {
	area, err := newStagingArea(t.TempDir(), "job-1")
	require.NoError(t, err)
	defer area.cleanup()

	f := packageFile("a.wav", model.FileTypeAudio, []byte("audio"))
	path, err := area.stage(f)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	area.release(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStaging_StageRejectsChecksumMismatch(t *testing.T) {
	area, err := newStagingArea(t.TempDir(), "job-1")
	require.NoError(t, err)
	defer area.cleanup()

	f := packageFile("a.wav", model.FileTypeAudio, []byte("audio"))
	f.MD5Hash = "00000000000000000000000000000000"

	_, err = area.stage(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	entries, err := os.ReadDir(area.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStaging_CleanupRemovesDirectory(t *testing.T) {
	area, err := newStagingArea(t.TempDir(), "job-1")
	require.NoError(t, err)

	_, err = area.stage(packageFile("a.wav", model.FileTypeAudio, []byte("audio")))
	require.NoError(t, err)

	area.cleanup()
	_, err = os.Stat(area.dir)
	assert.True(t, os.IsNotExist(err))
}

func unusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestFTP_ConnectFailureLeavesNoStagingBehind(t *testing.T) {
	base := t.TempDir()
	adapter := NewFTPAdapter(Options{StagingDir: base, ConnectTimeout: time.Second})

	target := &model.DeliveryTarget{
		Protocol:   model.ProtocolFTP,
		Connection: model.Connection{Host: "127.0.0.1", Port: unusedPort(t), Username: "u", Password: "p"},
	}
	pkg := testPackage(packageFile("123456789012_01_001.wav", model.FileTypeAudio, []byte("audio")))

	_, err := adapter.Deliver(context.Background(), target, pkg)
	require.Error(t, err)

	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.ProtocolFTP, te.Protocol)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSFTP_ConnectFailureLeavesNoStagingBehind(t *testing.T) {
	base := t.TempDir()
	adapter := NewSFTPAdapter(Options{StagingDir: base, ConnectTimeout: time.Second})

	target := &model.DeliveryTarget{
		Protocol:   model.ProtocolSFTP,
		Connection: model.Connection{Host: "127.0.0.1", Port: unusedPort(t), Username: "u", Password: "p"},
	}

	_, err := adapter.Deliver(context.Background(), target, testPackage())
	require.Error(t, err)

	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.ProtocolSFTP, te.Protocol)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSFTP_MissingCredentialsIsValidation(t *testing.T) {
	adapter := NewSFTPAdapter(Options{StagingDir: t.TempDir()})

	_, err := adapter.Deliver(context.Background(), &model.DeliveryTarget{Connection: model.Connection{Host: "sftp.example.com"}}, testPackage())
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

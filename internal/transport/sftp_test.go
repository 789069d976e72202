package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// startSFTPServer runs an SSH server on loopback that accepts label/s3cret and
// serves the sftp subsystem against the local filesystem.
func startSFTPServer(t *testing.T) int {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "label" && string(pass) == "s3cret" {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			nc, err := l.Accept()
			if err != nil {
				return
			}
			go serveSFTP(nc, cfg)
		}
	}()
	return l.Addr().(*net.TCPAddr).Port
}

func serveSFTP(nc net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				_ = req.Reply(req.Type == "subsystem", nil)
			}
		}(requests)

		server, err := sftp.NewServer(ch)
		if err != nil {
			_ = ch.Close()
			continue
		}
		go func() {
			_ = server.Serve()
			_ = server.Close()
		}()
	}
}

func sftpTarget(port int, dir string) *model.DeliveryTarget {
	return &model.DeliveryTarget{
		Protocol: model.ProtocolSFTP,
		Connection: model.Connection{
			Host:      "127.0.0.1",
			Port:      port,
			Username:  "label",
			Password:  "s3cret",
			Directory: dir,
		},
	}
}

func TestSFTP_UploadsEveryFile(t *testing.T) {
	port := startSFTPServer(t)
	staging := t.TempDir()
	remote := filepath.Join(t.TempDir(), "inbox", "batch")
	adapter := NewSFTPAdapter(Options{StagingDir: staging, ConnectTimeout: 5 * time.Second})

	pkg := testPackage(
		packageFile("123456789012_01_001.wav", model.FileTypeAudio, []byte("first track")),
		packageFile("123456789012.jpg", model.FileTypeImage, []byte("cover")),
	)

	result, err := adapter.Deliver(context.Background(), sftpTarget(port, remote), pkg)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Files, 3)
	assert.Equal(t, filepath.Join(remote, "MSG-1.xml"), result.Files[0].Location)
	assert.Equal(t, int64(len("<NewReleaseMessage/>")+len("first track")+len("cover")), result.BytesTransferred)

	for _, f := range pkg.Files {
		data, err := os.ReadFile(filepath.Join(remote, f.Name))
		require.NoError(t, err)
		assert.Equal(t, f.Content, data)
	}

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSFTP_FailureStopsRemainingFilesAndCleansStaging(t *testing.T) {
	port := startSFTPServer(t)
	staging := t.TempDir()
	remote := t.TempDir()
	adapter := NewSFTPAdapter(Options{StagingDir: staging, ConnectTimeout: 5 * time.Second})

	// A directory where the second file should go makes its upload fail.
	require.NoError(t, os.Mkdir(filepath.Join(remote, "123456789012_01_001.wav"), 0o755))

	pkg := testPackage(
		packageFile("123456789012_01_001.wav", model.FileTypeAudio, []byte("first track")),
		packageFile("123456789012_01_002.wav", model.FileTypeAudio, []byte("second track")),
	)

	_, err := adapter.Deliver(context.Background(), sftpTarget(port, remote), pkg)
	require.Error(t, err)

	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.ProtocolSFTP, te.Protocol)
	assert.Equal(t, "123456789012_01_001.wav", te.File)

	_, err = os.Stat(filepath.Join(remote, "MSG-1.xml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(remote, "123456789012_01_002.wav"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSFTP_StalledHandshakeHonoursAttemptDeadline(t *testing.T) {
	// Accepts TCP but never sends an SSH banner.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(io.Discard, c)
				_ = c.Close()
			}()
		}
	}()

	adapter := NewSFTPAdapter(Options{StagingDir: t.TempDir(), ConnectTimeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = adapter.Deliver(ctx, sftpTarget(l.Addr().(*net.TCPAddr).Port, ""), testPackage())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	var te *model.TransportError
	assert.ErrorAs(t, err, &te)
}

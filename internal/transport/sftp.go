package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// SFTPAdapter uploads packages over SFTP using password or private key auth.
type SFTPAdapter struct {
	opts Options
}

// NewSFTPAdapter creates an SFTP adapter.
func NewSFTPAdapter(opts Options) *SFTPAdapter {
	return &SFTPAdapter{opts: opts.withDefaults()}
}

// Deliver implements Adapter.
func (a *SFTPAdapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := time.Now()
	conn := target.Connection
	if conn.Host == "" {
		return nil, model.NewValidationError("connection.host", "SFTP host is required")
	}

	sshConfig, err := a.clientConfig(conn)
	if err != nil {
		return nil, err
	}

	staging, err := newStagingArea(a.opts.StagingDir, pkg.DeliveryID)
	if err != nil {
		return nil, transportErr(model.ProtocolSFTP, "", err)
	}
	defer staging.cleanup()

	port := conn.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(conn.Host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: a.opts.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transportErr(model.ProtocolSFTP, "", fmt.Errorf("failed to connect to %s: %w", addr, err))
	}

	// ClientConfig.Timeout only covers ssh.Dial; the handshake and every
	// transfer below run under the attempt deadline instead.
	netConn = bindConn(ctx, netConn)

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	if err != nil {
		netConn.Close()
		return nil, transportErr(model.ProtocolSFTP, "", fmt.Errorf("ssh handshake failed: %w", err))
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, transportErr(model.ProtocolSFTP, "", fmt.Errorf("failed to start sftp session: %w", err))
	}
	defer client.Close()

	dir := conn.Directory
	if dir == "" {
		dir = "."
	}
	if dir != "." {
		if err := client.MkdirAll(dir); err != nil {
			return nil, transportErr(model.ProtocolSFTP, "", fmt.Errorf("failed to create directory %s: %w", dir, err))
		}
	}

	log := a.opts.Logger.With(logger.String("delivery_id", pkg.DeliveryID), logger.String("host", conn.Host))
	result := &model.DeliveryResult{MessageID: pkg.Metadata.MessageID}
	for _, f := range pkg.Files {
		if err := ctx.Err(); err != nil {
			return nil, transportErr(model.ProtocolSFTP, f.Name, err)
		}

		staged, err := staging.stage(f)
		if err != nil {
			return nil, transportErr(model.ProtocolSFTP, f.Name, err)
		}

		remote := path.Join(dir, f.Name)
		err = a.put(client, staged, remote)
		staging.release(staged)
		if err != nil {
			return nil, transportErr(model.ProtocolSFTP, f.Name, err)
		}

		log.Debug("SFTP file uploaded", logger.String("file", f.Name), logger.Int64("size", f.Size))
		result.Files = append(result.Files, deliveredFile(f, remote))
		result.BytesTransferred += f.Size
	}

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (a *SFTPAdapter) put(client *sftp.Client, stagedPath, remote string) error {
	src, err := os.Open(stagedPath)
	if err != nil {
		return fmt.Errorf("failed to open staged file: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(remote)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close remote file: %w", err)
	}
	return nil
}

func (a *SFTPAdapter) clientConfig(conn model.Connection) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if conn.PrivateKey != "" {
		signer, err := parseSigner(conn.PrivateKey, conn.Passphrase)
		if err != nil {
			return nil, model.NewValidationError("connection.privateKey", "%v", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if conn.Password != "" {
		auth = append(auth, ssh.Password(conn.Password))
	}
	if len(auth) == 0 {
		return nil, model.NewValidationError("connection", "SFTP requires a password or private key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if conn.HostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(conn.HostKey))
		if err != nil {
			return nil, model.NewValidationError("connection.hostKey", "invalid host key: %v", err)
		}
		hostKeyCallback = ssh.FixedHostKey(key)
	} else {
		a.opts.Logger.Warn("SFTP host key not pinned", logger.String("host", conn.Host))
	}

	return &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         a.opts.ConnectTimeout,
	}, nil
}

func parseSigner(privateKey, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase([]byte(privateKey), []byte(passphrase))
	}
	return ssh.ParsePrivateKey([]byte(privateKey))
}

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// FTPAdapter uploads packages over FTP in passive mode, optionally with
// explicit TLS.
type FTPAdapter struct {
	opts Options
}

// NewFTPAdapter creates an FTP adapter.
func NewFTPAdapter(opts Options) *FTPAdapter {
	return &FTPAdapter{opts: opts.withDefaults()}
}

// Deliver implements Adapter.
func (a *FTPAdapter) Deliver(ctx context.Context, target *model.DeliveryTarget, pkg *model.DeliveryPackage) (*model.DeliveryResult, error) {
	start := time.Now()
	conn := target.Connection
	if conn.Host == "" {
		return nil, model.NewValidationError("connection.host", "FTP host is required")
	}

	staging, err := newStagingArea(a.opts.StagingDir, pkg.DeliveryID)
	if err != nil {
		return nil, transportErr(model.ProtocolFTP, "", err)
	}
	defer staging.cleanup()

	port := conn.Port
	if port == 0 {
		port = 21
	}
	addr := net.JoinHostPort(conn.Host, strconv.Itoa(port))

	dialer := &ftpDialer{ctx: ctx, dialer: net.Dialer{Timeout: a.opts.ConnectTimeout}}
	dialOpts := []ftp.DialOption{ftp.DialWithDialFunc(dialer.dial)}
	if conn.Secure {
		dialer.tls = &tls.Config{ServerName: conn.Host, MinVersion: tls.VersionTLS12}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(dialer.tls))
	}

	client, err := ftp.Dial(addr, dialOpts...)
	if err != nil {
		return nil, transportErr(model.ProtocolFTP, "", fmt.Errorf("failed to connect to %s: %w", addr, err))
	}
	defer client.Quit()

	if err := client.Login(conn.Username, conn.Password); err != nil {
		return nil, transportErr(model.ProtocolFTP, "", fmt.Errorf("login failed: %w", err))
	}

	if err := ftpChangeDirAll(client, conn.Directory); err != nil {
		return nil, transportErr(model.ProtocolFTP, "", err)
	}

	log := a.opts.Logger.With(logger.String("delivery_id", pkg.DeliveryID), logger.String("host", conn.Host))
	result := &model.DeliveryResult{MessageID: pkg.Metadata.MessageID}
	for _, f := range pkg.Files {
		if err := ctx.Err(); err != nil {
			return nil, transportErr(model.ProtocolFTP, f.Name, err)
		}

		staged, err := staging.stage(f)
		if err != nil {
			return nil, transportErr(model.ProtocolFTP, f.Name, err)
		}

		if err := a.store(client, staged, f.Name); err != nil {
			staging.release(staged)
			return nil, transportErr(model.ProtocolFTP, f.Name, err)
		}
		staging.release(staged)

		log.Debug("FTP file uploaded", logger.String("file", f.Name), logger.Int64("size", f.Size))
		result.Files = append(result.Files, deliveredFile(f, path.Join(conn.Directory, f.Name)))
		result.BytesTransferred += f.Size
	}

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (a *FTPAdapter) store(client *ftp.ServerConn, stagedPath, name string) error {
	file, err := os.Open(stagedPath)
	if err != nil {
		return fmt.Errorf("failed to open staged file: %w", err)
	}
	defer file.Close()

	if err := client.Stor(name, file); err != nil {
		return fmt.Errorf("STOR failed: %w", err)
	}
	return nil
}

// ftpChangeDirAll enters dir one segment at a time, creating missing segments.
func ftpChangeDirAll(client *ftp.ServerConn, dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if strings.HasPrefix(dir, "/") {
		if err := client.ChangeDir("/"); err != nil {
			return fmt.Errorf("failed to enter /: %w", err)
		}
	}

	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		if segment == "" {
			continue
		}
		if err := client.ChangeDir(segment); err == nil {
			continue
		}
		if err := client.MakeDir(segment); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", segment, err)
		}
		if err := client.ChangeDir(segment); err != nil {
			return fmt.Errorf("failed to enter directory %s: %w", segment, err)
		}
	}
	return nil
}

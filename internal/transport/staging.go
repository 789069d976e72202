package transport

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// stagingArea is a per-attempt local directory that file-based transports
// write each file through before upload.
type stagingArea struct {
	dir string
}

// newStagingArea creates a fresh directory under base. The caller must call
// cleanup on every exit path.
func newStagingArea(base, deliveryID string) (*stagingArea, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging base: %w", err)
	}
	dir, err := os.MkdirTemp(base, "delivery-"+filepath.Base(deliveryID)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &stagingArea{dir: dir}, nil
}

// stage writes f to disk and verifies the staged bytes against the package
// checksum. The returned path is removed by release or cleanup.
func (s *stagingArea) stage(f model.PackageFile) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Content, 0o600); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", f.Name, err)
	}

	sum, err := fileMD5(path)
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	if f.MD5Hash != "" && sum != f.MD5Hash {
		_ = os.Remove(path)
		return "", fmt.Errorf("checksum mismatch for %s: staged %s, expected %s", f.Name, sum, f.MD5Hash)
	}
	return path, nil
}

func (s *stagingArea) release(path string) {
	_ = os.Remove(path)
}

func (s *stagingArea) cleanup() {
	_ = os.RemoveAll(s.dir)
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open staged file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash staged file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

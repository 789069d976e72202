// Package packager turns a release and a delivery intent into the ordered,
// checksummed file set a transport adapter uploads.
package packager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// ReleaseStore resolves release catalog records.
type ReleaseStore interface {
	GetRelease(ctx context.Context, releaseID string) (*model.Release, error)
}

// AssetStore downloads asset bytes. Implementations must be read-only.
type AssetStore interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Builder assembles delivery packages.
type Builder struct {
	releases ReleaseStore
	assets   AssetStore
	log      logger.Logger
}

// NewBuilder creates a package builder.
func NewBuilder(releases ReleaseStore, assets AssetStore, log logger.Logger) *Builder {
	return &Builder{releases: releases, assets: assets, log: log}
}

// Build resolves the release of job and produces its package. Quality
// concerns that do not stop the delivery are reported in pkg.Warnings.
func (b *Builder) Build(ctx context.Context, job *model.DeliveryJob, target *model.DeliveryTarget) (*model.DeliveryPackage, error) {
	if job.ERNMessageID == "" {
		return nil, model.NewValidationError("ernMessageId", "message id is required")
	}

	release, err := b.releases.GetRelease(ctx, job.ReleaseID)
	if errors.Is(err, model.ErrReleaseNotFound) {
		return nil, model.NewValidationError("releaseId", "release %s not found", job.ReleaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load release %s: %w", job.ReleaseID, err)
	}
	if release == nil {
		return nil, model.NewValidationError("releaseId", "release %s not found", job.ReleaseID)
	}

	pkg := &model.DeliveryPackage{
		DeliveryID: job.ID,
		CreatedAt:  job.CreatedAt,
		Metadata: model.PackageMetadata{
			MessageID:      job.ERNMessageID,
			MessageType:    job.MessageType,
			MessageSubType: job.MessageSubType,
			TestMode:       job.TestMode || target.TestMode,
			Priority:       job.Priority,
		},
		DistributorID: target.DistributorID,
	}

	switch {
	case release.UPC == "":
		pkg.UPC = PlaceholderUPC
		pkg.Warnings = append(pkg.Warnings, fmt.Sprintf("release has no UPC, using placeholder %s", PlaceholderUPC))
	case !ValidUPC(release.UPC):
		return nil, model.NewValidationError("upc", "%q is not a 12-14 digit UPC", release.UPC)
	default:
		pkg.UPC = release.UPC
	}

	xml := []byte(job.ERNXML)
	pkg.Files = append(pkg.Files, model.PackageFile{
		Name:    ControlFileName(job.ERNMessageID),
		Content: xml,
		Type:    model.FileTypeXML,
		MD5Hash: md5Hex(xml),
		Size:    int64(len(xml)),
	})

	if job.MessageSubType == model.MessageSubTypeTakedown {
		return pkg, nil
	}

	for i, src := range release.Assets.AudioURLs {
		disc, track := trackPosition(release.Tracks, i)
		ext, ok := NormalizeExtension(src)
		if !ok {
			ext = DefaultAudioExtension
			warning := fmt.Sprintf("could not determine extension of %s, defaulting to %s", OriginalName(src), ext)
			pkg.Warnings = append(pkg.Warnings, warning)
			b.log.Warn("Asset extension undeterminable",
				logger.String("job_id", job.ID),
				logger.String("url", src),
				logger.String("assumed", ext),
			)
		}

		file, err := b.resolve(ctx, src, AudioFileName(pkg.UPC, disc, track, ext), model.FileTypeAudio)
		if err != nil {
			return nil, err
		}
		pkg.Files = append(pkg.Files, file)
	}

	for i, src := range release.Assets.ImageURLs {
		file, err := b.resolve(ctx, src, ImageFileName(pkg.UPC, i+1), model.FileTypeImage)
		if err != nil {
			return nil, err
		}
		pkg.Files = append(pkg.Files, file)
	}

	return pkg, nil
}

// resolve downloads src and checksums the bytes.
func (b *Builder) resolve(ctx context.Context, src, name string, fileType model.FileType) (model.PackageFile, error) {
	data, err := b.assets.Download(ctx, src)
	if err != nil {
		return model.PackageFile{}, fmt.Errorf("failed to download %s: %w", OriginalName(src), err)
	}
	return model.PackageFile{
		Name:         name,
		OriginalName: OriginalName(src),
		URL:          src,
		Content:      data,
		Type:         fileType,
		MD5Hash:      md5Hex(data),
		Size:         int64(len(data)),
	}, nil
}

// trackPosition returns the disc and 1-based sequence of the i-th audio asset.
func trackPosition(tracks []model.Track, i int) (disc, sequence int) {
	disc, sequence = 1, i+1
	if i < len(tracks) {
		if tracks[i].SequenceNumber > 0 {
			sequence = tracks[i].SequenceNumber
		}
		if tracks[i].DiscNumber > 0 {
			disc = tracks[i].DiscNumber
		}
	}
	return disc, sequence
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

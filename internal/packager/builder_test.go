package packager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

type stubReleases struct {
	release *model.Release
	err     error
}

func (s *stubReleases) GetRelease(ctx context.Context, releaseID string) (*model.Release, error) {
	return s.release, s.err
}

type stubAssets struct {
	content   map[string][]byte
	err       error
	downloads int
}

func (s *stubAssets) Download(ctx context.Context, url string) ([]byte, error) {
	s.downloads++
	if s.err != nil {
		return nil, s.err
	}
	if data, ok := s.content[url]; ok {
		return data, nil
	}
	return []byte("bytes:" + url), nil
}

func testRelease() *model.Release {
	return &model.Release{
		ID:  "rel-1",
		UPC: "123456789012",
		Tracks: []model.Track{
			{SequenceNumber: 1, DiscNumber: 1, ISRC: "USAAA2600001"},
			{SequenceNumber: 2, DiscNumber: 1, ISRC: "USAAA2600002"},
			{SequenceNumber: 3, DiscNumber: 1, ISRC: "USAAA2600003"},
		},
		Assets: model.ReleaseAssets{
			AudioURLs: []string{
				"https://cdn.example.com/audio/one.wav",
				"https://cdn.example.com/audio/two.MPEG?token=x",
				"https://cdn.example.com/audio/three.flac",
			},
			ImageURLs: []string{
				"https://cdn.example.com/img/cover.jpeg",
				"https://cdn.example.com/img/back.jpg",
			},
		},
	}
}

func testJob(subType model.MessageSubType) *model.DeliveryJob {
	return &model.DeliveryJob{
		ID:             "job-1",
		ReleaseID:      "rel-1",
		TargetID:       "tgt-1",
		MessageType:    "NewReleaseMessage",
		MessageSubType: subType,
		ERNMessageID:   "MSG-0001",
		ERNXML:         "<ern/>",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBuild_InitialPackageOrderAndNames(t *testing.T) {
	assets := &stubAssets{}
	b := NewBuilder(&stubReleases{release: testRelease()}, assets, logger.NewNop())

	pkg, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{DistributorID: "dist-1"})
	require.NoError(t, err)

	var names []string
	for _, f := range pkg.Files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"MSG-0001.xml",
		"123456789012_01_001.wav",
		"123456789012_01_002.mp3",
		"123456789012_01_003.flac",
		"123456789012.jpg",
		"123456789012_02.jpg",
	}, names)

	assert.Equal(t, model.FileTypeXML, pkg.Files[0].Type)
	assert.Equal(t, model.FileTypeAudio, pkg.Files[1].Type)
	assert.Equal(t, model.FileTypeImage, pkg.Files[4].Type)
	assert.Equal(t, "dist-1", pkg.DistributorID)
	assert.Equal(t, "MSG-0001", pkg.Metadata.MessageID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), pkg.CreatedAt)
	assert.Equal(t, 5, assets.downloads)
	assert.Empty(t, pkg.Warnings)
}

func TestBuild_ChecksumsOverResolvedBytes(t *testing.T) {
	release := testRelease()
	release.Assets.AudioURLs = release.Assets.AudioURLs[:1]
	release.Assets.ImageURLs = nil
	payload := []byte("RIFF....WAVE")
	assets := &stubAssets{content: map[string][]byte{release.Assets.AudioURLs[0]: payload}}

	b := NewBuilder(&stubReleases{release: release}, assets, logger.NewNop())
	pkg, err := b.Build(context.Background(), testJob(model.MessageSubTypeUpdate), &model.DeliveryTarget{})
	require.NoError(t, err)
	require.Len(t, pkg.Files, 2)

	sum := md5.Sum(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), pkg.Files[1].MD5Hash)
	assert.Equal(t, int64(len(payload)), pkg.Files[1].Size)
	assert.Equal(t, "one.wav", pkg.Files[1].OriginalName)

	xmlSum := md5.Sum([]byte("<ern/>"))
	assert.Equal(t, hex.EncodeToString(xmlSum[:]), pkg.Files[0].MD5Hash)
}

func TestBuild_TakedownContainsOnlyControlFile(t *testing.T) {
	assets := &stubAssets{}
	b := NewBuilder(&stubReleases{release: testRelease()}, assets, logger.NewNop())

	pkg, err := b.Build(context.Background(), testJob(model.MessageSubTypeTakedown), &model.DeliveryTarget{})
	require.NoError(t, err)

	require.Len(t, pkg.Files, 1)
	assert.Equal(t, "MSG-0001.xml", pkg.Files[0].Name)
	assert.Equal(t, model.FileTypeXML, pkg.Files[0].Type)
	assert.Zero(t, assets.downloads)
}

func TestBuild_MissingUPCUsesPlaceholderWithWarning(t *testing.T) {
	release := testRelease()
	release.UPC = ""
	b := NewBuilder(&stubReleases{release: release}, &stubAssets{}, logger.NewNop())

	pkg, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{})
	require.NoError(t, err)

	assert.Equal(t, PlaceholderUPC, pkg.UPC)
	assert.Equal(t, "000000000000_01_001.wav", pkg.Files[1].Name)
	assert.NotEmpty(t, pkg.Warnings)
}

func TestBuild_MalformedUPCIsFatal(t *testing.T) {
	release := testRelease()
	release.UPC = "12345-ABC"
	b := NewBuilder(&stubReleases{release: release}, &stubAssets{}, logger.NewNop())

	_, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestBuild_MissingReleaseIsValidation(t *testing.T) {
	b := NewBuilder(&stubReleases{err: model.ErrReleaseNotFound}, &stubAssets{}, logger.NewNop())

	_, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestBuild_DownloadFailureIsNotValidation(t *testing.T) {
	b := NewBuilder(&stubReleases{release: testRelease()}, &stubAssets{err: errors.New("connection reset")}, logger.NewNop())

	_, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{})
	require.Error(t, err)
	assert.False(t, model.IsValidation(err))
}

func TestBuild_UnknownExtensionDefaultsToWav(t *testing.T) {
	release := testRelease()
	release.Assets.AudioURLs = []string{"https://cdn.example.com/audio/master"}
	release.Assets.ImageURLs = nil
	b := NewBuilder(&stubReleases{release: release}, &stubAssets{}, logger.NewNop())

	pkg, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{})
	require.NoError(t, err)

	assert.Equal(t, "123456789012_01_001.wav", pkg.Files[1].Name)
	require.Len(t, pkg.Warnings, 1)
	assert.Contains(t, pkg.Warnings[0], "defaulting to wav")
}

func TestBuild_MultiDiscPositions(t *testing.T) {
	release := testRelease()
	release.Tracks = []model.Track{
		{SequenceNumber: 1, DiscNumber: 1},
		{SequenceNumber: 1, DiscNumber: 2},
	}
	release.Assets.AudioURLs = []string{"https://x/a.flac", "https://x/b.flac"}
	release.Assets.ImageURLs = nil
	b := NewBuilder(&stubReleases{release: release}, &stubAssets{}, logger.NewNop())

	pkg, err := b.Build(context.Background(), testJob(model.MessageSubTypeInitial), &model.DeliveryTarget{})
	require.NoError(t, err)

	assert.Equal(t, "123456789012_01_001.flac", pkg.Files[1].Name)
	assert.Equal(t, "123456789012_02_001.flac", pkg.Files[2].Name)
}

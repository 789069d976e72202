package packager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioFileName(t *testing.T) {
	assert.Equal(t, "123456789012_01_003.flac", AudioFileName("123456789012", 1, 3, "flac"))
	assert.Equal(t, "123456789012_02_112.mp3", AudioFileName("123456789012", 2, 112, "mp3"))
}

func TestImageFileName(t *testing.T) {
	assert.Equal(t, "123456789012.jpg", ImageFileName("123456789012", 1))
	assert.Equal(t, "123456789012_02.jpg", ImageFileName("123456789012", 2))
	assert.Equal(t, "123456789012_10.jpg", ImageFileName("123456789012", 10))
}

func TestNormalizeExtension(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://cdn/a.mp3", "mp3", true},
		{"https://cdn/a.mpeg", "mp3", true},
		{"https://cdn/a.WAV", "wav", true},
		{"https://cdn/a.wave", "wav", true},
		{"https://cdn/a.flac?sig=1", "flac", true},
		{"https://cdn/a.jpeg", "jpg", true},
		{"https://cdn/a.png", "png", true},
		{"https://firebasestorage.example/o/releases%2Fr1%2Ftrack.flac?alt=media", "flac", true},
		{"https://cdn/a.ogg", "", false},
		{"https://cdn/noext", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := NormalizeExtension(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidUPC(t *testing.T) {
	assert.True(t, ValidUPC("123456789012"))
	assert.True(t, ValidUPC("1234567890123"))
	assert.True(t, ValidUPC("12345678901234"))
	assert.False(t, ValidUPC("12345678901"))
	assert.False(t, ValidUPC("123456789012345"))
	assert.False(t, ValidUPC("12345678901A"))
}

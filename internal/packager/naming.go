package packager

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// PlaceholderUPC is used when a release carries no barcode at all.
const PlaceholderUPC = "000000000000"

// DefaultAudioExtension is assumed when a source URL yields no known extension.
const DefaultAudioExtension = "wav"

var upcPattern = regexp.MustCompile(`^\d{12,14}$`)

// extensionTable normalises source extensions to the DDEX package extension.
var extensionTable = map[string]string{
	"mp3":  "mp3",
	"mpeg": "mp3",
	"wav":  "wav",
	"wave": "wav",
	"flac": "flac",
	"jpg":  "jpg",
	"jpeg": "jpg",
	"png":  "png",
}

// ValidUPC reports whether upc is 12 to 14 digits.
func ValidUPC(upc string) bool {
	return upcPattern.MatchString(upc)
}

// ControlFileName names the ERN control message.
func ControlFileName(messageID string) string {
	return messageID + ".xml"
}

// AudioFileName names a track asset: {upc}_{disc:02}_{track:03}.{ext}.
func AudioFileName(upc string, discNumber, trackSequence int, ext string) string {
	return fmt.Sprintf("%s_%02d_%03d.%s", upc, discNumber, trackSequence, ext)
}

// ImageFileName names the index-th image (1-based). The first image is the
// front cover and carries no suffix.
func ImageFileName(upc string, index int) string {
	if index <= 1 {
		return upc + ".jpg"
	}
	return fmt.Sprintf("%s_%02d.jpg", upc, index)
}

// NormalizeExtension maps the extension of a source URL through the
// normalisation table. ok is false when nothing known could be found.
func NormalizeExtension(sourceURL string) (ext string, ok bool) {
	p := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Path != "" {
		p = u.Path
	}
	// Storage URLs often escape the object path (a%2Fb.flac).
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	raw := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext, ok := extensionTable[raw]; ok {
		return ext, true
	}
	return "", false
}

// OriginalName returns the last path segment of a source URL.
func OriginalName(sourceURL string) string {
	p := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Path != "" {
		p = u.Path
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return path.Base(p)
}

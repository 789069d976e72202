package model

// Release is the catalog view the package builder needs. It is owned by the
// external release store.
type Release struct {
	ID     string        `json:"id"`
	UPC    string        `json:"upc"`
	Title  string        `json:"title,omitempty"`
	Tracks []Track       `json:"tracks"`
	Assets ReleaseAssets `json:"assets"`
}

// Track is one sound recording on a release.
type Track struct {
	SequenceNumber int    `json:"sequenceNumber"`
	DiscNumber     int    `json:"discNumber,omitempty"`
	ISRC           string `json:"isrc"`
}

// ReleaseAssets lists the media URLs of a release.
type ReleaseAssets struct {
	AudioURLs []string `json:"audioUrls"`
	ImageURLs []string `json:"imageUrls"`
}

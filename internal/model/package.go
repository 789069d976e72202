package model

import "time"

// DeliveryPackage is the per-attempt file set handed to a transport adapter.
// It is built fresh for every attempt and never persisted.
type DeliveryPackage struct {
	DeliveryID    string          `json:"deliveryId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UPC           string          `json:"upc"`
	Files         []PackageFile   `json:"files"`
	Metadata      PackageMetadata `json:"metadata"`
	DistributorID string          `json:"distributorId,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// PackageMetadata describes the control message carried by a package.
type PackageMetadata struct {
	MessageID      string         `json:"messageId"`
	MessageType    string         `json:"messageType"`
	MessageSubType MessageSubType `json:"messageSubType"`
	TestMode       bool           `json:"testMode"`
	Priority       string         `json:"priority,omitempty"`
}

// PackageFile is one file of a package with its DDEX-compliant name.
// Content holds the resolved bytes the MD5 was computed over.
type PackageFile struct {
	Name         string   `json:"name"`
	OriginalName string   `json:"originalName,omitempty"`
	URL          string   `json:"url,omitempty"`
	Content      []byte   `json:"-"`
	Type         FileType `json:"type"`
	MD5Hash      string   `json:"md5Hash"`
	Size         int64    `json:"size"`
}

// ControlFile returns the XML control message of the package.
func (p *DeliveryPackage) ControlFile() (PackageFile, bool) {
	for _, f := range p.Files {
		if f.Type == FileTypeXML {
			return f, true
		}
	}
	return PackageFile{}, false
}

// TotalSize sums the size of every file in the package.
func (p *DeliveryPackage) TotalSize() int64 {
	var total int64
	for _, f := range p.Files {
		total += f.Size
	}
	return total
}

// DeliveryResult is what a transport adapter reports for a finished attempt.
type DeliveryResult struct {
	Success          bool            `json:"success"`
	Files            []DeliveredFile `json:"files"`
	BytesTransferred int64           `json:"bytesTransferred"`
	MessageID        string          `json:"messageId"`
	Acknowledgment   string          `json:"acknowledgment,omitempty"`
	AcknowledgmentID string          `json:"acknowledgmentId,omitempty"`
	DurationMs       int64           `json:"durationMs"`
}

// DeliveredFile is a file as it landed at the destination.
type DeliveredFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MD5      string `json:"md5"`
	Location string `json:"location,omitempty"`
}

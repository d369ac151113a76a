package asset

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the processing lifecycle of an asset.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// IsTerminal reports whether no further automatic transition can occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind is the detected media family of an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// KindForMIME returns image for image/* types and video for everything else.
func KindForMIME(mimeType string) Kind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return KindImage
	}
	return KindVideo
}

// SizeClass names one thumbnail variant.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// CanonicalThumbnail is the size class exposed as the asset's thumbnail reference.
const CanonicalThumbnail = SizeMedium

// SizeClasses lists thumbnail variants from smallest to largest.
func SizeClasses() []SizeClass {
	return []SizeClass{SizeSmall, SizeMedium, SizeLarge}
}

// Metadata holds technical properties extracted from the original upload.
type Metadata struct {
	Width     int
	Height    int
	Duration  int
	Codec     string
	Bitrate   int64
	FrameRate float64
	Extra     map[string]any
	UpdatedAt time.Time
}

// Tag is a user-facing label attached to assets.
type Tag struct {
	ID   int64
	Name string
	Slug string
}

// Asset is one uploaded media file, its derived artifacts and processing status.
type Asset struct {
	ID           int64
	OwnerID      int64
	Name         string
	OriginalName string
	MIMEType     string
	Kind         Kind
	Size         int64
	Path         string

	CompressedPath string
	ThumbnailPath  string
	Thumbnails     map[SizeClass]string
	Metadata       *Metadata

	Status       Status
	ErrorMessage string
	Tags         []Tag

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// HasCompressed reports whether the compression derivative exists.
func (a *Asset) HasCompressed() bool {
	return a != nil && a.CompressedPath != ""
}

// HasThumbnails reports whether at least one thumbnail exists.
func (a *Asset) HasThumbnails() bool {
	return a != nil && len(a.Thumbnails) > 0
}

// HasMetadata reports whether the metadata record exists.
func (a *Asset) HasMetadata() bool {
	return a != nil && a.Metadata != nil
}

// NewAsset carries the immutable facts recorded at upload time.
type NewAsset struct {
	OwnerID      int64
	Name         string
	OriginalName string
	MIMEType     string
	Kind         Kind
	Size         int64
	Path         string
}

// Filter narrows List queries. Zero values are ignored.
type Filter struct {
	OwnerID        int64
	Statuses       []Status
	Kind           Kind
	Tag            string
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

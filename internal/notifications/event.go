package notifications

import (
	"time"

	"mediapipe/internal/asset"
)

// EventType names a completion event.
type EventType string

const (
	EventCompleted EventType = "asset.completed"
	EventFailed    EventType = "asset.failed"
)

// Event announces that an asset reached a terminal status.
type Event struct {
	Type       EventType `json:"type"`
	AssetID    int64     `json:"asset_id"`
	Asset      Snapshot  `json:"asset"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot is the wire form of an asset at the moment of the transition.
type Snapshot struct {
	ID             int64             `json:"id"`
	OwnerID        int64             `json:"owner_id"`
	Name           string            `json:"name"`
	OriginalName   string            `json:"original_name"`
	MIMEType       string            `json:"mime_type"`
	Kind           string            `json:"kind"`
	Size           int64             `json:"size"`
	Path           string            `json:"path"`
	Status         string            `json:"status"`
	Progress       int               `json:"progress"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CompressedPath string            `json:"compressed_path,omitempty"`
	ThumbnailPath  string            `json:"thumbnail_path,omitempty"`
	Thumbnails     map[string]string `json:"thumbnails,omitempty"`
	Metadata       *MetadataSnapshot `json:"metadata,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
}

// MetadataSnapshot is the wire form of asset.Metadata.
type MetadataSnapshot struct {
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	Duration  int            `json:"duration,omitempty"`
	Codec     string         `json:"codec,omitempty"`
	Bitrate   int64          `json:"bitrate,omitempty"`
	FrameRate float64        `json:"frame_rate,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// NewEvent builds the completion event for a terminal asset. The type follows
// the asset's status: failed assets produce asset.failed, everything else
// asset.completed.
func NewEvent(a *asset.Asset, at time.Time) Event {
	eventType := EventCompleted
	if a.Status == asset.StatusFailed {
		eventType = EventFailed
	}
	return Event{
		Type:       eventType,
		AssetID:    a.ID,
		Asset:      snapshotOf(a),
		OccurredAt: at.UTC(),
	}
}

func snapshotOf(a *asset.Asset) Snapshot {
	snap := Snapshot{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Name:           a.Name,
		OriginalName:   a.OriginalName,
		MIMEType:       a.MIMEType,
		Kind:           string(a.Kind),
		Size:           a.Size,
		Path:           a.Path,
		Status:         string(a.Status),
		Progress:       asset.Progress(a),
		ErrorMessage:   a.ErrorMessage,
		CompressedPath: a.CompressedPath,
		ThumbnailPath:  a.ThumbnailPath,
	}
	if len(a.Thumbnails) > 0 {
		snap.Thumbnails = make(map[string]string, len(a.Thumbnails))
		for class, p := range a.Thumbnails {
			snap.Thumbnails[string(class)] = p
		}
	}
	if m := a.Metadata; m != nil {
		snap.Metadata = &MetadataSnapshot{
			Width:     m.Width,
			Height:    m.Height,
			Duration:  m.Duration,
			Codec:     m.Codec,
			Bitrate:   m.Bitrate,
			FrameRate: m.FrameRate,
			Extra:     m.Extra,
		}
	}
	for _, tag := range a.Tags {
		snap.Tags = append(snap.Tags, tag.Name)
	}
	return snap
}

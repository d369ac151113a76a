package stages

import (
	"context"
	"log/slog"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/blob"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/services"
	"mediapipe/internal/transcoder"
)

// Metadata extracts technical properties of the original upload.
type Metadata struct {
	base
}

// NewMetadata constructs the metadata extraction stage handler.
func NewMetadata(cfg *config.Config, assets AssetWriter, blobs blob.Store, media MediaTool, logger *slog.Logger) *Metadata {
	return &Metadata{base: newBase("metadata", cfg, assets, blobs, media, logger)}
}

func (m *Metadata) Name() string { return NameMetadata }

func (m *Metadata) Mandatory() bool { return false }

func (m *Metadata) Timeout() time.Duration {
	_, _, timeout := m.cfg.StageTimeouts()
	return timeout
}

// Run inspects the original and upserts the asset's metadata record.
func (m *Metadata) Run(ctx context.Context, a *asset.Asset) error {
	src, err := m.resolveOriginal(ctx, NameMetadata, a)
	if err != nil {
		return err
	}

	var meta asset.Metadata
	if a.Kind == asset.KindImage {
		meta, err = m.imageMetadata(ctx, src)
	} else {
		meta, err = m.videoMetadata(ctx, src)
	}
	if err != nil {
		return err
	}
	if err := m.assets.UpsertMetadata(ctx, a.ID, meta); err != nil {
		return err
	}

	logging.WithContext(ctx, m.logger).Info("metadata stored",
		logging.String(logging.FieldEventType, "metadata_stored"),
		logging.Int("width", meta.Width),
		logging.Int("height", meta.Height),
		logging.String("codec", meta.Codec),
	)
	return nil
}

func (m *Metadata) imageMetadata(ctx context.Context, src string) (asset.Metadata, error) {
	info, err := m.media.Inspect(ctx, src)
	if err != nil {
		return asset.Metadata{}, err
	}
	return asset.Metadata{
		Width:  info.Width,
		Height: info.Height,
		Extra: map[string]any{
			"format":     info.Format,
			"colorspace": info.ColorModel,
		},
	}, nil
}

func (m *Metadata) videoMetadata(ctx context.Context, src string) (asset.Metadata, error) {
	probe, err := m.media.Probe(ctx, src)
	if err != nil {
		return asset.Metadata{}, err
	}
	video, ok := probe.VideoStream()
	if !ok {
		return asset.Metadata{}, services.Wrap(services.ErrUnsupportedInput, NameMetadata, "probe", "no video stream found", nil)
	}

	extra := map[string]any{
		"format_name":  probe.Format.FormatName,
		"stream_count": len(probe.Streams),
	}
	if audio, ok := probe.AudioStream(); ok {
		extra["audio_codec"] = audio.CodecName
	}
	return asset.Metadata{
		Width:     video.Width,
		Height:    video.Height,
		Duration:  probe.DurationSeconds(),
		Codec:     video.CodecName,
		Bitrate:   probe.BitRate(),
		FrameRate: transcoder.ParseFrameRate(video.RFrameRate),
		Extra:     extra,
	}, nil
}

// HealthCheck verifies ffprobe is reachable for video inspection.
func (m *Metadata) HealthCheck(context.Context) Health {
	return binaryHealth(NameMetadata, ffprobeRequirement(m.cfg))
}

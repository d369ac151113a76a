package transcoder

import (
	"context"
	"log/slog"
	"strings"

	"mediapipe/internal/config"
	"mediapipe/internal/logging"
)

// Media distinguishes the two families of input the transcoder handles.
type Media string

const (
	MediaImage Media = "image"
	MediaVideo Media = "video"
)

// TargetSpec describes a compressed rendition.
type TargetSpec struct {
	Media Media
	// Image targets: the bounding box the output must fit in, and JPEG quality.
	MaxWidth  int
	MaxHeight int
	Quality   int
	// Video targets.
	CRF          int
	Preset       string
	AudioBitrate string
}

// Box is a thumbnail target size and JPEG quality.
type Box struct {
	Width   int
	Height  int
	Quality int
}

// Transcoder runs media conversions according to the transcoder config.
type Transcoder struct {
	ffmpeg       string
	ffprobe      string
	videoEncoder string
	logger       *slog.Logger
	encoder      videoEncoder
}

// New builds a Transcoder. A nil logger discards output.
func New(cfg config.Transcoder, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Transcoder{
		ffmpeg:       firstNonEmpty(cfg.FFmpegBinary, "ffmpeg"),
		ffprobe:      firstNonEmpty(cfg.FFprobeBinary, "ffprobe"),
		videoEncoder: cfg.VideoEncoder,
		logger:       logging.NewComponentLogger(logger, "transcoder"),
	}
	if cfg.VideoEncoder == config.VideoEncoderDrapto {
		t.encoder = draptoEncoder{logger: t.logger}
	} else {
		t.encoder = ffmpegEncoder{t: t}
	}
	return t
}

// ImageTarget returns the compression target for still images.
func ImageTarget(cfg config.Transcoder) TargetSpec {
	return TargetSpec{
		Media:     MediaImage,
		MaxWidth:  cfg.ImageMaxWidth,
		MaxHeight: cfg.ImageMaxHeight,
		Quality:   cfg.ImageQuality,
	}
}

// VideoTarget returns the compression target for video.
func VideoTarget(cfg config.Transcoder) TargetSpec {
	return TargetSpec{
		Media:        MediaVideo,
		CRF:          cfg.VideoCRF,
		Preset:       cfg.VideoPreset,
		AudioBitrate: cfg.AudioBitrate,
	}
}

// Binaries returns the ffmpeg and ffprobe executables in use.
func (t *Transcoder) Binaries() (ffmpeg, ffprobe string) {
	return t.ffmpeg, t.ffprobe
}

// Transcode produces the compressed rendition of src at dst and returns the
// path actually written. The drapto backend picks its own container, so the
// returned path may differ from dst in extension.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string, spec TargetSpec) (string, error) {
	if spec.Media == MediaImage {
		return t.compressImage(ctx, src, dst, spec)
	}
	return t.encoder.encode(ctx, src, dst, spec)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

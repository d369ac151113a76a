package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Paths.BlobDir) == "" {
			return errors.New("paths.blob_dir must be set for the local storage backend")
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket must be set when storage.backend is s3")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected local or s3)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	t := c.Transcoder
	switch t.VideoEncoder {
	case VideoEncoderFFmpeg, VideoEncoderDrapto:
	default:
		return fmt.Errorf("transcoder.video_encoder: unsupported value %q (expected ffmpeg or drapto)", t.VideoEncoder)
	}
	if t.ImageMaxWidth <= 0 || t.ImageMaxHeight <= 0 {
		return errors.New("transcoder.image_max_width and image_max_height must be positive")
	}
	if t.ImageQuality < 1 || t.ImageQuality > 100 {
		return errors.New("transcoder.image_quality must be between 1 and 100")
	}
	if t.ThumbnailQuality < 1 || t.ThumbnailQuality > 100 {
		return errors.New("transcoder.thumbnail_quality must be between 1 and 100")
	}
	if t.VideoCRF < 0 || t.VideoCRF > 51 {
		return errors.New("transcoder.video_crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.RetryBackoff < 0 {
		return errors.New("pipeline.retry_backoff must be zero or positive")
	}
	if p.CompressionTimeout <= 0 {
		return errors.New("pipeline.compression_timeout must be positive")
	}
	if p.ThumbnailTimeout <= 0 {
		return errors.New("pipeline.thumbnail_timeout must be positive")
	}
	if p.MetadataTimeout <= 0 {
		return errors.New("pipeline.metadata_timeout must be positive")
	}
	if p.HeartbeatTimeout <= p.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than heartbeat_interval")
	}
	return nil
}

func (c *Config) validateIntake() error {
	if len(c.Intake.AllowedMIMETypes) == 0 {
		return errors.New("intake.allowed_mime_types must list at least one type")
	}
	for _, value := range c.Intake.AllowedMIMETypes {
		if !strings.HasPrefix(value, "image/") && !strings.HasPrefix(value, "video/") {
			return fmt.Errorf("intake.allowed_mime_types: %q is neither image/* nor video/*", value)
		}
	}
	if c.Intake.MaxUploadMB < 0 {
		return errors.New("intake.max_upload_mb must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

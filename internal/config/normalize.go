package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeTranscoder()
	c.normalizePipeline()
	c.normalizeIntake()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = filepath.Join(c.Paths.DataDir, "blobs")
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	c.Storage.S3Bucket = strings.TrimSpace(c.Storage.S3Bucket)
	c.Storage.S3Endpoint = strings.TrimSpace(c.Storage.S3Endpoint)
	c.Storage.S3Prefix = strings.Trim(strings.TrimSpace(c.Storage.S3Prefix), "/")
	c.Storage.S3Region = strings.TrimSpace(c.Storage.S3Region)
	if c.Storage.S3Region == "" {
		c.Storage.S3Region = defaultS3Region
	}
	c.Storage.S3AccessKey = strings.TrimSpace(c.Storage.S3AccessKey)
	if c.Storage.S3AccessKey == "" {
		if value, ok := os.LookupEnv("MEDIAPIPE_S3_ACCESS_KEY"); ok {
			c.Storage.S3AccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.S3SecretKey = strings.TrimSpace(c.Storage.S3SecretKey)
	if c.Storage.S3SecretKey == "" {
		if value, ok := os.LookupEnv("MEDIAPIPE_S3_SECRET_KEY"); ok {
			c.Storage.S3SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTranscoder() {
	t := &c.Transcoder
	t.FFmpegBinary = strings.TrimSpace(t.FFmpegBinary)
	if t.FFmpegBinary == "" {
		t.FFmpegBinary = defaultFFmpegBinary
	}
	t.FFprobeBinary = strings.TrimSpace(t.FFprobeBinary)
	if t.FFprobeBinary == "" {
		t.FFprobeBinary = defaultFFprobeBinary
	}
	t.VideoEncoder = strings.ToLower(strings.TrimSpace(t.VideoEncoder))
	if t.VideoEncoder == "" {
		t.VideoEncoder = VideoEncoderFFmpeg
	}
	t.VideoPreset = strings.TrimSpace(t.VideoPreset)
	if t.VideoPreset == "" {
		t.VideoPreset = defaultVideoPreset
	}
	t.AudioBitrate = strings.TrimSpace(t.AudioBitrate)
	if t.AudioBitrate == "" {
		t.AudioBitrate = defaultAudioBitrate
	}
	t.ThumbnailOffset = strings.TrimSpace(t.ThumbnailOffset)
	if t.ThumbnailOffset == "" {
		t.ThumbnailOffset = defaultThumbnailOffset
	}
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	if p.Workers <= 0 {
		p.Workers = defaultWorkers
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.QueuePollInterval <= 0 {
		p.QueuePollInterval = defaultQueuePollInterval
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = defaultHeartbeatInterval
	}
	if p.HeartbeatTimeout <= 0 {
		p.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeIntake() {
	if len(c.Intake.AllowedMIMETypes) == 0 {
		c.Intake.AllowedMIMETypes = append([]string(nil), defaultAllowedMIMETypes...)
		return
	}
	seen := make(map[string]struct{}, len(c.Intake.AllowedMIMETypes))
	types := make([]string, 0, len(c.Intake.AllowedMIMETypes))
	for _, value := range c.Intake.AllowedMIMETypes {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		types = append(types, normalized)
	}
	c.Intake.AllowedMIMETypes = types
}

func (c *Config) normalizeNotifications() {
	n := &c.Notifications
	n.NtfyTopic = strings.TrimSpace(n.NtfyTopic)
	if n.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MEDIAPIPE_NTFY_TOPIC"); ok {
			n.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if n.RequestTimeout <= 0 {
		n.RequestTimeout = defaultRequestTimeout
	}
	n.NATSURL = strings.TrimSpace(n.NATSURL)
	if n.NATSURL == "" {
		if value, ok := os.LookupEnv("NATS_URL"); ok {
			n.NATSURL = strings.TrimSpace(value)
		}
	}
	n.NATSSubject = strings.TrimSpace(n.NATSSubject)
	if n.NATSSubject == "" {
		n.NATSSubject = defaultNATSSubject
	}
	brokers := n.KafkaBrokers[:0]
	for _, broker := range n.KafkaBrokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	n.KafkaBrokers = brokers
	n.KafkaTopic = strings.TrimSpace(n.KafkaTopic)
	if n.KafkaTopic == "" {
		n.KafkaTopic = defaultKafkaTopic
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

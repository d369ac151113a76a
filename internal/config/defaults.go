package config

const (
	defaultConfigPath = "~/.config/mediapipe/config.toml"

	defaultDataDir  = "~/.local/share/mediapipe"
	defaultBlobDir  = "~/.local/share/mediapipe/blobs"
	defaultLogDir   = "~/.local/share/mediapipe/logs"
	defaultCacheDir = "~/.cache/mediapipe"

	// StorageLocal keeps blobs on the local filesystem under paths.blob_dir.
	StorageLocal = "local"
	// StorageS3 keeps blobs in an S3-compatible bucket.
	StorageS3 = "s3"

	// VideoEncoderFFmpeg compresses video with libx264 through ffmpeg.
	VideoEncoderFFmpeg = "ffmpeg"
	// VideoEncoderDrapto compresses video to AV1 through the drapto library.
	VideoEncoderDrapto = "drapto"

	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultImageMaxWidth    = 1920
	defaultImageMaxHeight   = 1080
	defaultImageQuality     = 85
	defaultThumbnailQuality = 90
	defaultVideoCRF         = 28
	defaultVideoPreset      = "medium"
	defaultAudioBitrate     = "128k"
	defaultThumbnailOffset  = "00:00:01"

	defaultWorkers            = 4
	defaultMaxAttempts        = 3
	defaultRetryBackoff       = 2
	defaultCompressionTimeout = 3600
	defaultThumbnailTimeout   = 600
	defaultMetadataTimeout    = 300
	defaultQueuePollInterval  = 2
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultMaxUploadMB      = 100
	defaultRequestTimeout   = 10
	defaultNATSSubject      = "media.processed"
	defaultKafkaTopic       = "media-processed"
	defaultLogFormat        = "console"
	defaultLogRetentionDays = 14
	defaultLogLevel         = "info"
	defaultS3Region         = "us-east-1"
)

var defaultAllowedMIMETypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
	"video/mp4",
	"video/mpeg",
	"video/quicktime",
	"video/x-msvideo",
	"video/webm",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	allowed := make([]string, len(defaultAllowedMIMETypes))
	copy(allowed, defaultAllowedMIMETypes)

	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			BlobDir:  defaultBlobDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
		},
		Storage: Storage{
			Backend:  StorageLocal,
			S3Region: defaultS3Region,
		},
		Transcoder: Transcoder{
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			VideoEncoder:     VideoEncoderFFmpeg,
			ImageMaxWidth:    defaultImageMaxWidth,
			ImageMaxHeight:   defaultImageMaxHeight,
			ImageQuality:     defaultImageQuality,
			ThumbnailQuality: defaultThumbnailQuality,
			VideoCRF:         defaultVideoCRF,
			VideoPreset:      defaultVideoPreset,
			AudioBitrate:     defaultAudioBitrate,
			ThumbnailOffset:  defaultThumbnailOffset,
		},
		Pipeline: Pipeline{
			Workers:            defaultWorkers,
			MaxAttempts:        defaultMaxAttempts,
			RetryBackoff:       defaultRetryBackoff,
			CompressionTimeout: defaultCompressionTimeout,
			ThumbnailTimeout:   defaultThumbnailTimeout,
			MetadataTimeout:    defaultMetadataTimeout,
			QueuePollInterval:  defaultQueuePollInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Intake: Intake{
			AllowedMIMETypes: allowed,
			MaxUploadMB:      defaultMaxUploadMB,
		},
		Notifications: Notifications{
			LogEvents:      true,
			RequestTimeout: defaultRequestTimeout,
			NATSSubject:    defaultNATSSubject,
			KafkaTopic:     defaultKafkaTopic,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

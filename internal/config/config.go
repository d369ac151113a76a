package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	BlobDir  string `toml:"blob_dir"`
	LogDir   string `toml:"log_dir"`
	CacheDir string `toml:"cache_dir"`
}

// Storage selects and configures the blob store backend.
type Storage struct {
	Backend     string `toml:"backend"`
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3Prefix    string `toml:"s3_prefix"`
	S3PathStyle bool   `toml:"s3_path_style"`
}

// Transcoder contains external tool and encoding settings.
type Transcoder struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	FFprobeBinary    string `toml:"ffprobe_binary"`
	VideoEncoder     string `toml:"video_encoder"`
	ImageMaxWidth    int    `toml:"image_max_width"`
	ImageMaxHeight   int    `toml:"image_max_height"`
	ImageQuality     int    `toml:"image_quality"`
	ThumbnailQuality int    `toml:"thumbnail_quality"`
	VideoCRF         int    `toml:"video_crf"`
	VideoPreset      string `toml:"video_preset"`
	AudioBitrate     string `toml:"audio_bitrate"`
	ThumbnailOffset  string `toml:"thumbnail_offset"`
}

// Pipeline contains worker pool, retry, and timeout settings. Durations are seconds.
type Pipeline struct {
	Workers            int `toml:"workers"`
	MaxAttempts        int `toml:"max_attempts"`
	RetryBackoff       int `toml:"retry_backoff"`
	CompressionTimeout int `toml:"compression_timeout"`
	ThumbnailTimeout   int `toml:"thumbnail_timeout"`
	MetadataTimeout    int `toml:"metadata_timeout"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Intake contains upload validation settings.
type Intake struct {
	AllowedMIMETypes []string `toml:"allowed_mime_types"`
	MaxUploadMB      int      `toml:"max_upload_mb"`
}

// Notifications configures completion event subscribers. Each sink is enabled
// by setting its address.
type Notifications struct {
	LogEvents      bool     `toml:"log_events"`
	NtfyTopic      string   `toml:"ntfy_topic"`
	RequestTimeout int      `toml:"request_timeout"`
	NATSURL        string   `toml:"nats_url"`
	NATSSubject    string   `toml:"nats_subject"`
	KafkaBrokers   []string `toml:"kafka_brokers"`
	KafkaTopic     string   `toml:"kafka_topic"`
}

// Metrics configures the Prometheus listener. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// API configures the daemon's read-only HTTP status API. An empty bind
// disables it; a non-empty token requires bearer authentication.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for mediapipe.
//
// Configuration sections by subsystem:
//   - Paths: database, blob, log and cache directories
//   - Storage: blob store backend (local or s3)
//   - Transcoder: ffmpeg/ffprobe binaries and encoding targets
//   - Pipeline: worker pool sizing, retries, and per-stage timeouts
//   - Intake: upload MIME allowlist and size limit
//   - Notifications: completion event sinks (log, ntfy, NATS, Kafka)
//   - Metrics: Prometheus listener
//   - API: HTTP status API
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Transcoder    Transcoder    `toml:"transcoder"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Intake        Intake        `toml:"intake"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediapipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.CacheDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Paths.BlobDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file backing asset records.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "assets.db")
}

// QueuePath returns the SQLite file backing the stage job queue.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediapipe.lock")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "mediapipe.pid")
}

// MaxUploadBytes returns the intake size ceiling. Zero means unlimited.
func (c *Config) MaxUploadBytes() int64 {
	if c.Intake.MaxUploadMB <= 0 {
		return 0
	}
	return int64(c.Intake.MaxUploadMB) * 1024 * 1024
}

// StageTimeouts reports the per-attempt ceilings for each stage.
func (c *Config) StageTimeouts() (compression, thumbnail, metadata time.Duration) {
	return seconds(c.Pipeline.CompressionTimeout),
		seconds(c.Pipeline.ThumbnailTimeout),
		seconds(c.Pipeline.MetadataTimeout)
}

// RetryBackoff returns the base delay between stage attempts.
func (c *Config) RetryBackoff() time.Duration {
	return seconds(c.Pipeline.RetryBackoff)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

const uploadPartSize = 10 * 1024 * 1024

// S3 keeps blobs in an S3-compatible bucket. Resolve downloads objects into a
// local cache directory so external tools can read them.
type S3 struct {
	client   *s3.Client
	bucket   string
	prefix   string
	cacheDir string
}

// NewS3 builds an S3 store from the storage section. Static credentials are
// used when configured; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.Storage, cacheDir string) (*S3, error) {
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, fmt.Errorf("s3 blob store: %w: bucket required", services.ErrConfiguration)
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := cfg.S3Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &S3{
		client:   client,
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		cacheDir: filepath.Join(cacheDir, "blobs"),
	}, nil
}

func (s *S3) key(cleaned string) string {
	if s.prefix == "" {
		return cleaned
	}
	return path.Join(s.prefix, cleaned)
}

func (s *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cleaned)),
	})
	if err != nil {
		return nil, classifyS3Error(p, err)
	}
	return out.Body, nil
}

func (s *S3) Write(ctx context.Context, p string, r io.Reader) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cleaned)),
		Body:   r,
	}
	if ctype := mime.TypeByExtension(path.Ext(cleaned)); ctype != "" {
		in.ContentType = aws.String(ctype)
	}
	uploader := manager.NewUploader(s.client)
	if _, err := uploader.Upload(ctx, in, func(u *manager.Uploader) { u.PartSize = uploadPartSize }); err != nil {
		return "", fmt.Errorf("upload blob %s: %w: %w", cleaned, services.ErrTransient, err)
	}
	return cleaned, nil
}

// Resolve downloads the object into the cache directory unless a cached copy
// already exists. Blob paths embed a fresh uuid per write, so cached copies
// never go stale.
func (s *S3) Resolve(ctx context.Context, p string) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	local := filepath.Join(s.cacheDir, filepath.FromSlash(cleaned))
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, nil
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	tmpName := tmp.Name()

	downloader := manager.NewDownloader(s.client)
	_, err = downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cleaned)),
	})
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return "", classifyS3Error(p, err)
	}
	if err := os.Rename(tmpName, local); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit cached blob %s: %w", cleaned, err)
	}
	return local, nil
}

func (s *S3) Delete(ctx context.Context, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cleaned)),
	}); err != nil {
		return fmt.Errorf("delete blob %s: %w", cleaned, err)
	}
	local := filepath.Join(s.cacheDir, filepath.FromSlash(cleaned))
	if err := os.Remove(local); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("evict cached blob %s: %w", cleaned, err)
	}
	return nil
}

func classifyS3Error(p string, err error) error {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("blob %s: %w", p, services.ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return fmt.Errorf("blob %s: %w", p, services.ErrNotFound)
	}
	return fmt.Errorf("fetch blob %s: %w: %w", p, services.ErrTransient, err)
}

var _ Store = (*S3)(nil)

package transcoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	draptolib "github.com/five82/drapto"

	"mediapipe/internal/services"
)

type videoEncoder interface {
	encode(ctx context.Context, src, dst string, spec TargetSpec) (string, error)
}

// ffmpegEncoder compresses to H.264/AAC MP4 with the moov atom up front.
type ffmpegEncoder struct {
	t *Transcoder
}

func (e ffmpegEncoder) encode(ctx context.Context, src, dst string, spec TargetSpec) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if _, err := e.t.run(ctx, e.t.ffmpeg, compressArgs(src, dst, spec)...); err != nil {
		return "", err
	}
	return dst, requireOutput("ffmpeg", dst)
}

func compressArgs(src, dst string, spec TargetSpec) []string {
	preset := firstNonEmpty(spec.Preset, "medium")
	audio := firstNonEmpty(spec.AudioBitrate, "128k")
	return []string{
		"-y", "-i", src,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(spec.CRF),
		"-preset", preset,
		"-c:a", "aac",
		"-b:a", audio,
		"-movflags", "+faststart",
		dst,
	}
}

// draptoEncoder compresses to AV1 through the drapto library. Drapto names the
// output after the input stem with an .mkv extension inside dst's directory.
type draptoEncoder struct {
	logger *slog.Logger
}

func (e draptoEncoder) encode(ctx context.Context, src, dst string, _ TargetSpec) (string, error) {
	outputDir := filepath.Dir(dst)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "drapto", "init encoder", "", err)
	}
	if _, err := encoder.EncodeWithReporter(ctx, src, outputDir, newDraptoReporter(e.logger)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", timeoutError("drapto", "encode", ctxErr)
		}
		return "", services.Wrap(services.ErrExternalTool, "drapto", "encode", filepath.Base(src), err)
	}

	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	out := filepath.Join(outputDir, stem+".mkv")
	return out, requireOutput("drapto", out)
}

// ExtractFrame grabs one frame at offset, scaled to fit box and padded to its
// exact size, and writes it as JPEG.
func (t *Transcoder) ExtractFrame(ctx context.Context, src, dst, offset string, box Box) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if _, err := t.run(ctx, t.ffmpeg, frameArgs(src, dst, offset, box)...); err != nil {
		return "", err
	}
	return dst, requireOutput("ffmpeg", dst)
}

func frameArgs(src, dst, offset string, box Box) []string {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		box.Width, box.Height, box.Width, box.Height,
	)
	args := []string{"-y", "-i", src, "-ss", firstNonEmpty(offset, "00:00:01"), "-vframes", "1", "-vf", filter}
	if box.Quality > 0 {
		args = append(args, "-q:v", strconv.Itoa(jpegQScale(box.Quality)))
	}
	return append(args, dst)
}

// jpegQScale maps a 1-100 JPEG quality onto ffmpeg's 2-31 mjpeg qscale, where
// lower is better.
func jpegQScale(quality int) int {
	quality = min(max(quality, 1), 100)
	return 31 - (quality-1)*29/99
}

func requireOutput(tool, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, tool, "verify output", "no output written to "+filepath.Base(path), err)
	}
	return nil
}

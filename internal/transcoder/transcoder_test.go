package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
	"mediapipe/internal/testsupport"
)

func newTestTranscoder(t *testing.T, opts ...testsupport.ConfigOption) *Transcoder {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return New(cfg.Transcoder, nil)
}

func TestParseFrameRate(t *testing.T) {
	cases := map[string]float64{
		"30/1":       30,
		"30000/1001": 29.97,
		"25":         25,
		"24000/1001": 23.98,
		"0/0":        0,
		"30/0":       0,
		"abc":        0,
		"":           0,
		"1/x":        0,
	}
	for input, want := range cases {
		if got := ParseFrameRate(input); got != want {
			t.Fatalf("ParseFrameRate(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestCompressArgsMatchEncodingProfile(t *testing.T) {
	cfg := config.Default()
	args := compressArgs("in.mov", "out.mp4", VideoTarget(cfg.Transcoder))
	want := []string{
		"-y", "-i", "in.mov", "-c:v", "libx264", "-crf", "28", "-preset", "medium",
		"-c:a", "aac", "-b:a", "128k", "-movflags", "+faststart", "out.mp4",
	}
	if !slices.Equal(args, want) {
		t.Fatalf("unexpected ffmpeg args:\n got %v\nwant %v", args, want)
	}
}

func TestFrameArgsScaleAndPad(t *testing.T) {
	args := frameArgs("in.mp4", "thumb.jpg", "00:00:01", Box{Width: 300, Height: 300})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-ss 00:00:01 -vframes 1") {
		t.Fatalf("expected frame seek args, got %q", joined)
	}
	if !strings.Contains(joined, "scale=300:300:force_original_aspect_ratio=decrease,pad=300:300:(ow-iw)/2:(oh-ih)/2") {
		t.Fatalf("expected scale+pad filter, got %q", joined)
	}
	if jpegQScale(100) != 2 || jpegQScale(1) != 31 {
		t.Fatalf("unexpected qscale mapping: %d %d", jpegQScale(100), jpegQScale(1))
	}
}

func TestCompressImageFitsWithoutUpscaling(t *testing.T) {
	tr := newTestTranscoder(t)
	dir := t.TempDir()
	cfg := config.Default()
	spec := ImageTarget(cfg.Transcoder)

	large := filepath.Join(dir, "large.png")
	testsupport.WriteImage(t, large, 3840, 1600)
	out, err := tr.Transcode(context.Background(), large, filepath.Join(dir, "out", "large.jpg"), spec)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1920 || b.Dy() != 800 {
		t.Fatalf("expected 1920x800, got %dx%d", b.Dx(), b.Dy())
	}

	small := filepath.Join(dir, "small.png")
	testsupport.WriteImage(t, small, 640, 480)
	out, err = tr.Transcode(context.Background(), small, filepath.Join(dir, "out", "small.jpg"), spec)
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	info, err := tr.Inspect(context.Background(), out)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Width != 640 || info.Height != 480 || info.Format != "jpeg" {
		t.Fatalf("unexpected compressed image info: %#v", info)
	}
}

func TestThumbnailFillsBox(t *testing.T) {
	tr := newTestTranscoder(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	testsupport.WriteImage(t, src, 1000, 400)

	out, err := tr.Thumbnail(context.Background(), src, filepath.Join(dir, "thumb.jpg"), Box{Width: 150, Height: 150, Quality: 90})
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}
	info, err := tr.Inspect(context.Background(), out)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Width != 150 || info.Height != 150 {
		t.Fatalf("expected 150x150 thumbnail, got %dx%d", info.Width, info.Height)
	}
}

func TestInProcessReturnsAtDeadline(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "thumb.jpg")
	partial := filepath.Join(dir, "thumb.partial.jpg")

	release := make(chan struct{})
	written := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := inProcess(ctx, "thumbnail", dst, func(tmp string) error {
		<-release
		defer close(written)
		return os.WriteFile(tmp, []byte("late"), 0o644)
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	close(release)
	<-written
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, perr := os.Stat(partial)
		_, derr := os.Stat(dst)
		if errors.Is(perr, os.ErrNotExist) && errors.Is(derr, os.ErrNotExist) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("abandoned output left behind: partial=%v dst=%v", perr, derr)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInProcessRenamesOnSuccess(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.jpg")
	out, err := inProcess(context.Background(), "compress", dst, func(tmp string) error {
		return os.WriteFile(tmp, []byte("jpeg"), 0o644)
	})
	if err != nil || out != dst {
		t.Fatalf("inProcess = %q, %v", out, err)
	}
	if data, err := os.ReadFile(dst); err != nil || string(data) != "jpeg" {
		t.Fatalf("expected output at %s, got %q err=%v", dst, data, err)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	tr := newTestTranscoder(t)
	path := filepath.Join(t.TempDir(), "junk.png")
	testsupport.WriteFile(t, path, 64)
	if _, err := tr.Inspect(context.Background(), path); !errors.Is(err, services.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported input, got %v", err)
	}
	if _, err := tr.Transcode(context.Background(), path, path+".jpg", TargetSpec{Media: MediaImage, MaxWidth: 10, MaxHeight: 10, Quality: 80}); !errors.Is(err, services.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported input on transcode, got %v", err)
	}
}

func TestProbeParsesStubOutput(t *testing.T) {
	script := `cat <<'JSON'
{"streams":[{"index":0,"codec_type":"audio","codec_name":"aac"},{"index":1,"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"r_frame_rate":"30000/1001"}],
 "format":{"duration":"12.7","bit_rate":"850000","format_name":"mov,mp4,m4a","nb_streams":2}}
JSON
`
	tr := newTestTranscoder(t, testsupport.WithStubScript("ffprobe", script))
	probe, err := tr.Probe(context.Background(), "/media/clip.mp4")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	video, ok := probe.VideoStream()
	if !ok || video.Width != 1920 || video.CodecName != "h264" {
		t.Fatalf("unexpected video stream: %#v", video)
	}
	if probe.DurationSeconds() != 12 || probe.BitRate() != 850000 {
		t.Fatalf("unexpected format values: %d %d", probe.DurationSeconds(), probe.BitRate())
	}
	if ParseFrameRate(video.RFrameRate) != 29.97 {
		t.Fatalf("unexpected frame rate %q", video.RFrameRate)
	}
}

func TestRunClassifiesFailures(t *testing.T) {
	t.Run("unsupported input", func(t *testing.T) {
		tr := newTestTranscoder(t, testsupport.WithStubScript("ffmpeg",
			"echo 'clip.mp4: Invalid data found when processing input' >&2\nexit 1\n"))
		_, err := tr.Transcode(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "out.mp4"), TargetSpec{Media: MediaVideo})
		if !errors.Is(err, services.ErrUnsupportedInput) || services.IsRetryable(err) {
			t.Fatalf("expected non-retryable unsupported input, got %v", err)
		}
	})
	t.Run("tool failure", func(t *testing.T) {
		tr := newTestTranscoder(t, testsupport.WithStubScript("ffmpeg", "echo 'encoder crashed' >&2\nexit 139\n"))
		_, err := tr.Transcode(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "out.mp4"), TargetSpec{Media: MediaVideo})
		if !errors.Is(err, services.ErrExternalTool) || !services.IsRetryable(err) {
			t.Fatalf("expected retryable tool failure, got %v", err)
		}
		if !strings.Contains(err.Error(), "encoder crashed") {
			t.Fatalf("expected stderr tail in error, got %v", err)
		}
	})
	t.Run("missing output", func(t *testing.T) {
		tr := newTestTranscoder(t, testsupport.WithStubScript("ffmpeg", "exit 0\n"))
		_, err := tr.ExtractFrame(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "f.jpg"), "", Box{Width: 10, Height: 10})
		if !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("expected missing output to be a tool failure, got %v", err)
		}
	})
	t.Run("missing binary", func(t *testing.T) {
		tr := newTestTranscoder(t, testsupport.WithConfig(func(c *config.Config) {
			c.Transcoder.FFprobeBinary = "mediapipe-no-such-ffprobe"
		}))
		if _, err := tr.Probe(context.Background(), "clip.mp4"); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestRunKillsProcessGroupOnTimeout(t *testing.T) {
	tr := newTestTranscoder(t, testsupport.WithStubScript("ffmpeg", "sleep 30 &\nwait\n"))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := tr.Transcode(ctx, "clip.mp4", filepath.Join(t.TempDir(), "out.mp4"), TargetSpec{Media: MediaVideo})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("expected prompt kill, took %s", elapsed)
	}
}

func TestExtractFrameWritesOutput(t *testing.T) {
	// The stub writes its last argument, like ffmpeg writing the output file.
	script := "for last; do :; done\nprintf 'jpeg' > \"$last\"\n"
	tr := newTestTranscoder(t, testsupport.WithStubScript("ffmpeg", script))
	dst := filepath.Join(t.TempDir(), "frames", "medium.jpg")
	out, err := tr.ExtractFrame(context.Background(), "clip.mp4", dst, "00:00:01", Box{Width: 300, Height: 300, Quality: 90})
	if err != nil {
		t.Fatalf("ExtractFrame failed: %v", err)
	}
	if data, err := os.ReadFile(out); err != nil || string(data) != "jpeg" {
		t.Fatalf("unexpected frame output %q, %v", data, err)
	}
}

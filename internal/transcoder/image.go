package transcoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"mediapipe/internal/services"
)

// ImageInfo summarizes a decoded still image.
type ImageInfo struct {
	Width      int
	Height     int
	Format     string
	ColorModel string
}

// Inspect reads the image header at path.
func (t *Transcoder) Inspect(_ context.Context, path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, openError("inspect", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return ImageInfo{}, services.Wrap(services.ErrUnsupportedInput, "image", "decode header", filepath.Base(path), err)
	}
	return ImageInfo{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     format,
		ColorModel: colorModelName(cfg.ColorModel),
	}, nil
}

// compressImage scales src down to fit the target box, never upscaling, and
// writes it as JPEG.
func (t *Transcoder) compressImage(ctx context.Context, src, dst string, spec TargetSpec) (string, error) {
	return inProcess(ctx, "compress", dst, func(tmp string) error {
		img, err := openImage(src)
		if err != nil {
			return err
		}
		bounds := img.Bounds()
		if bounds.Dx() > spec.MaxWidth || bounds.Dy() > spec.MaxHeight {
			img = imaging.Fit(img, spec.MaxWidth, spec.MaxHeight, imaging.Lanczos)
		}
		return saveJPEG(flatten(img), tmp, spec.Quality)
	})
}

// Thumbnail crops src to fill box exactly, anchored at the center, and writes
// it as JPEG.
func (t *Transcoder) Thumbnail(ctx context.Context, src, dst string, box Box) (string, error) {
	return inProcess(ctx, "thumbnail", dst, func(tmp string) error {
		img, err := openImage(src)
		if err != nil {
			return err
		}
		thumb := imaging.Fill(img, box.Width, box.Height, imaging.Center, imaging.Lanczos)
		return saveJPEG(flatten(thumb), tmp, box.Quality)
	})
}

// inProcess runs decode/resize/encode work that cannot observe ctx itself.
// work writes to a sibling of dst that is renamed into place on success. When
// ctx ends first the call returns at once; the abandoned work finishes in the
// background and its output is removed.
func inProcess(ctx context.Context, operation, dst string, work func(tmp string) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", timeoutError("image", operation, err)
	}
	ext := filepath.Ext(dst)
	tmp := strings.TrimSuffix(dst, ext) + ".partial" + ext

	done := make(chan error, 1)
	go func() { done <- work(tmp) }()

	select {
	case err := <-done:
		if err != nil {
			_ = os.Remove(tmp)
			return "", err
		}
		if err := os.Rename(tmp, dst); err != nil {
			_ = os.Remove(tmp)
			return "", services.Wrap(services.ErrTransient, "image", operation, filepath.Base(dst), err)
		}
		return dst, nil
	case <-ctx.Done():
		go func() {
			<-done
			_ = os.Remove(tmp)
		}()
		return "", timeoutError("image", operation, ctx.Err())
	}
}

func openImage(src string) (image.Image, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, openError("open", src, err)
	}
	return nil, services.Wrap(services.ErrUnsupportedInput, "image", "decode", filepath.Base(src), err)
}

// flatten composites img over white so transparent regions do not turn black
// in JPEG output.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func saveJPEG(img image.Image, dst string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(quality)); err != nil {
		return services.Wrap(services.ErrExternalTool, "image", "save", filepath.Base(dst), err)
	}
	return nil
}

func openError(operation, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrValidation, "image", operation, "source file missing: "+filepath.Base(path), err)
	}
	return services.Wrap(services.ErrTransient, "image", operation, filepath.Base(path), err)
}

func timeoutError(stage, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, operation, "deadline exceeded", err)
	}
	return err
}

func colorModelName(model color.Model) string {
	if _, ok := model.(color.Palette); ok {
		return "palette"
	}
	switch model {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return "rgb"
	case color.GrayModel, color.Gray16Model:
		return "gray"
	case color.YCbCrModel, color.NYCbCrAModel:
		return "ycbcr"
	case color.CMYKModel:
		return "cmyk"
	case color.AlphaModel, color.Alpha16Model:
		return "alpha"
	}
	return "unknown"
}

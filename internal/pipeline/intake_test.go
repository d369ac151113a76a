package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
	"mediapipe/internal/testsupport"
)

func TestCreateAssetRejectsInvalidUploads(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Intake.MaxUploadMB = 1
	}))
	ctx := context.Background()
	oversized := make([]byte, 1024*1024+1)

	cases := []struct {
		name   string
		upload pipeline.Upload
	}{
		{"unsupported type", pipeline.Upload{OriginalName: "doc.pdf", MIMEType: "application/pdf", Source: strings.NewReader("pdf")}},
		{"missing type", pipeline.Upload{OriginalName: "a.jpg", Source: strings.NewReader("jpeg")}},
		{"no source", pipeline.Upload{OriginalName: "a.jpg", MIMEType: "image/jpeg"}},
		{"declared too large", pipeline.Upload{OriginalName: "a.jpg", MIMEType: "image/jpeg", Size: int64(len(oversized)), Source: strings.NewReader("x")}},
		{"streamed too large", pipeline.Upload{OriginalName: "a.mp4", MIMEType: "video/mp4", Source: bytes.NewReader(oversized)}},
		{"empty file", pipeline.Upload{OriginalName: "a.jpg", MIMEType: "image/jpeg", Source: strings.NewReader("")}},
		{"unusable tag", pipeline.Upload{OriginalName: "a.jpg", MIMEType: "image/jpeg", Source: strings.NewReader("jpeg"), Tags: []string{"!!!"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.CreateAsset(ctx, tc.upload)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	assets, err := h.assets.List(ctx, asset.Filter{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("rejected uploads must not create assets, got %d", len(assets))
	}
	if n := h.blobCount(t); n != 0 {
		t.Fatalf("rejected uploads must not leave blobs, found %d", n)
	}
}

func TestCreateAssetNormalizesMIMEAndExtension(t *testing.T) {
	h := newHarness(t)

	a := h.upload(t, "  clip ", "Video/QuickTime; codecs=avc1", []byte("mov"))
	if a.MIMEType != "video/quicktime" || a.Kind != asset.KindVideo {
		t.Fatalf("unexpected type fields %q / %q", a.MIMEType, a.Kind)
	}
	if !strings.HasPrefix(a.Path, "media/video/") || !strings.HasSuffix(a.Path, ".mov") {
		t.Fatalf("expected extension derived from MIME type, got %q", a.Path)
	}
	if a.Name != "clip" || a.OwnerID != 7 {
		t.Fatalf("unexpected identity fields %+v", a)
	}
	if h.blobCount(t) != 1 {
		t.Fatal("expected the original to be stored")
	}
}

func TestCreateAssetUsesExplicitName(t *testing.T) {
	h := newHarness(t)
	a, err := h.orch.CreateAsset(context.Background(), pipeline.Upload{
		OwnerID:      1,
		Name:         "Cover art",
		OriginalName: "IMG_0001.webp",
		MIMEType:     "image/webp",
		Source:       strings.NewReader("webp"),
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if a.Name != "Cover art" || a.OriginalName != "IMG_0001.webp" {
		t.Fatalf("unexpected names %q / %q", a.Name, a.OriginalName)
	}
	if kinds := h.jobKinds(t, a.ID); kinds[queue.KindProcess] != 1 {
		t.Fatalf("expected process job, got %v", kinds)
	}
}

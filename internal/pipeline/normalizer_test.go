package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"report.pdf", FormatPDF},
		{"REPORT.PDF", FormatPDF},
		{"memo.docx", FormatOffice},
		{"memo.doc", FormatOffice},
		{"deck.pptx", FormatOffice},
		{"deck.ppt", FormatOffice},
		{"sheet.xlsx", FormatOffice},
		{"sheet.xls", FormatOffice},
		{"archive.zip", FormatUnknown},
		{"notes.txt", FormatUnknown},
		{"noextension", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := DetectFormat(tt.filename); got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":             "report",
		"dir/sub/Quarterly.docx": "Quarterly",
		"archive.tar.gz":         "archive.tar",
		"../../escape.pdf":       "escape",
		"":                       "document",
		".pdf":                   "document",
	}
	for in, want := range tests {
		if got := BaseName(in); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrorKindsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(KindDetectionFailure, 3, "malformed detection 0", errors.New("missing label")))

	if !errors.Is(err, ErrDetectionFailure) {
		t.Error("expected errors.Is to match DetectionFailure")
	}
	if errors.Is(err, ErrExtractionFailure) {
		t.Error("DetectionFailure must not match ExtractionFailure")
	}
	if got := KindOf(err); got != KindDetectionFailure {
		t.Errorf("KindOf = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	want := "DetectionFailure (page 3): malformed detection 0: missing label"
	if got := NewError(KindDetectionFailure, 3, "malformed detection 0", errors.New("missing label")).Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSerializeBlocksConcurrentInference(t *testing.T) {
	var active, maxActive int32
	d := Serialize(DetectorFunc(func(ctx context.Context, img image.Image) ([]models.Detection, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		atomic.AddInt32(&active, -1)
		return nil, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Errorf("max concurrent detections = %d, want 1", maxActive)
	}
}

func TestNormalizerWithoutConverterIsUnavailable(t *testing.T) {
	n := &Normalizer{PageImageDir: t.TempDir(), Rasterizer: &fakeRasterizer{pages: 1}}

	_, err := n.Render(context.Background(), Document{Path: "memo.docx", Filename: "memo.docx", Format: FormatOffice}, 72)
	if !errors.Is(err, ErrConversionUnavailable) {
		t.Fatalf("err = %v, want ConversionUnavailable", err)
	}
}

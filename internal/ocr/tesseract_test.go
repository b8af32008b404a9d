package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/otiai10/gosseract/v2"
)

func TestNewTesseractRecognizer(t *testing.T) {
	r := NewTesseractRecognizer()
	if r.pageSegMode != gosseract.PSM_SINGLE_BLOCK {
		t.Errorf("pageSegMode = %v, want PSM_SINGLE_BLOCK", r.pageSegMode)
	}
	if r.clientFactory == nil {
		t.Error("clientFactory is nil")
	}
}

func TestRecognizeHonorsCancelledContext(t *testing.T) {
	r := &TesseractRecognizer{
		clientFactory: func() *gosseract.Client {
			t.Fatal("client created for a cancelled context")
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Recognize(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)), "eng")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

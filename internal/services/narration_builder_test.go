package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

func TestBuildNarration(t *testing.T) {
	pages := []models.PageContent{{
		Page: 1,
		Content: []models.ContentItem{
			{Tag: models.LabelListItem, Content: "Buy milk"},
			{Tag: models.LabelPicture, Content: "/out/parsed_sections/x_page_1/Picture_0.png"},
		},
	}}

	res := BuildNarration(pages)
	if res.Status != "success" {
		t.Errorf("Status = %q", res.Status)
	}
	if want := "Page 1. Bullet point. Buy milk. Image detected."; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if len(res.Fragments) != 3 {
		t.Errorf("got %d fragments, want 3", len(res.Fragments))
	}
}

func TestProcessWithoutPagesIsRejected(t *testing.T) {
	f := &NarrationFunction{}

	_, err := f.Process(context.Background(), &models.NarrationRequest{DocumentID: "doc-1"})
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("err = %v, want ErrNoPages", err)
	}
}

func TestProcessInlinePagesSkipsStorage(t *testing.T) {
	f := &NarrationFunction{}

	res, err := f.Process(context.Background(), &models.NarrationRequest{
		Pages: []models.PageContent{{Page: 2, Content: []models.ContentItem{{Tag: models.LabelTitle, Content: "Summary"}}}},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if want := "Page 2. Title. Summary."; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.GCSUri != "" {
		t.Errorf("GCSUri = %q, want empty without a narration bucket", res.GCSUri)
	}
}

func TestCalculateFileHash(t *testing.T) {
	data := []byte("%PDF-1.4 hello")
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)

	got, err := calculateFileHash(path)
	if err != nil {
		t.Fatalf("calculateFileHash: %v", err)
	}
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("hash = %s, want %s", got, want)
	}
	if _, err := calculateFileHash(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

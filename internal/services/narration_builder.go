package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/layoutnarrator/internal/gcp"
	"github.com/Lllllllleong/layoutnarrator/internal/models"
	"github.com/Lllllllleong/layoutnarrator/internal/narration"
)

// ErrNoPages is returned when a narration request carries no pages.
var ErrNoPages = errors.New("pages required")

// NarrationConfig holds configuration for the narration-builder service.
type NarrationConfig struct {
	NarrationBucket string
}

// NarrationFunction builds narration scripts from parsed pages.
type NarrationFunction struct {
	storageClient *storage.Client
	config        NarrationConfig
}

// NewNarrationBuilder creates a new NarrationFunction instance.
func NewNarrationBuilder(ctx context.Context) (*NarrationFunction, error) {
	config := NarrationConfig{
		NarrationBucket: gcp.GetEnv("NARRATION_BUCKET", ""), // Optional: where scripts are stored for synthesis
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &NarrationFunction{
		storageClient: storageClient,
		config:        config,
	}, nil
}

// Process builds the script for req.Pages, or for the stored parse result at
// req.ResultGCSUri when no pages are inlined.
func (f *NarrationFunction) Process(ctx context.Context, req *models.NarrationRequest) (*models.NarrationResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)

	pages := req.Pages
	if len(pages) == 0 && req.ResultGCSUri != "" {
		result, err := f.loadResult(ctx, req.ResultGCSUri)
		if err != nil {
			logCtx.Error("Failed to load parse result", "error", err, "resultGcsUri", req.ResultGCSUri)
			return nil, err
		}
		pages = result.Pages
		if req.DocumentID == "" {
			req.DocumentID = result.DocumentID
		}
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	res := BuildNarration(pages)
	logCtx.Info("Built narration script.", "pageCount", len(pages), "fragmentCount", len(res.Fragments))

	if f.config.NarrationBucket != "" && req.DocumentID != "" {
		objectName := fmt.Sprintf("%s/narration.txt", req.DocumentID)
		if err := gcp.SaveToGCSAtomically(ctx, f.storageClient.Bucket(f.config.NarrationBucket), objectName, res.Text); err != nil {
			logCtx.Error("Failed to save narration script", "error", err, "objectName", objectName)
			return nil, err
		}
		res.GCSUri = gcp.ObjectURI(f.config.NarrationBucket, objectName)
	}
	return res, nil
}

// BuildNarration is the storage-free core of Process.
func BuildNarration(pages []models.PageContent) *models.NarrationResponse {
	script := narration.Narrate(pages)
	return &models.NarrationResponse{
		Status:    "success",
		Fragments: script.Fragments,
		Text:      narration.Text(script),
	}
}

func (f *NarrationFunction) loadResult(ctx context.Context, uri string) (*models.ParseResult, error) {
	bucket, object, err := gcp.ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}
	reader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", uri, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	var result models.ParseResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode parse result %s: %w", uri, err)
	}
	return &result, nil
}

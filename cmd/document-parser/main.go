package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/layoutnarrator/internal/services"
)

var (
	parserInstance *services.DocumentParserFunction
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("ParseUploadedDocument", parseUploadedDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// parseUploadedDocument is the Cloud Function entry point for GCS uploads.
func parseUploadedDocument(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for one-time initialization of clients.
	once.Do(func() {
		parserInstance, initErr = services.NewDocumentParser(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// The error is already logged with context within the Process method.
	return parserInstance.Process(ctx, gcsEvent)
}

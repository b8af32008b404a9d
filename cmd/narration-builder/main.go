package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
	"github.com/Lllllllleong/layoutnarrator/internal/services"
)

var (
	narrationInstance *services.NarrationFunction
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleBuildNarration" is the entry point name configured in GCP.
	functions.HTTP("HandleBuildNarration", handleBuildNarration)
}

// main is required by the Go Functions Framework.
func main() {}

// handleBuildNarration turns parsed pages into the script for speech synthesis.
func handleBuildNarration(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		narrationInstance, initErr = services.NewNarrationBuilder(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: NarrationBuilder initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.NarrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := narrationInstance.Process(r.Context(), &req)
	if errors.Is(err, services.ErrNoPages) {
		http.Error(w, "Bad Request: pages required", http.StatusBadRequest)
		return
	}
	if err != nil {
		// The specific error is already logged inside the Process method.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error(
			"Failed to write response",
			"error", err,
			"documentId", req.DocumentID,
			"executionId", req.ExecutionID,
		)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}

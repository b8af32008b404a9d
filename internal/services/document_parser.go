package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/layoutnarrator/internal/detect"
	"github.com/Lllllllleong/layoutnarrator/internal/gcp"
	"github.com/Lllllllleong/layoutnarrator/internal/models"
	"github.com/Lllllllleong/layoutnarrator/internal/ocr"
	"github.com/Lllllllleong/layoutnarrator/internal/pipeline"
	"github.com/Lllllllleong/layoutnarrator/internal/render"
)

type DocumentParserConfig struct {
	ProjectID         string
	VertexAIRegion    string
	DetectorModel     string
	ResultsBucket     string
	ArtifactsBucket   string
	CollectionName    string
	WorkflowID        string
	WorkflowLocation  string
	PageImageDir      string
	ParsedSectionsDir string
	RenderDPI         int
	OCRLanguage       string
	PageWorkers       int
	ConverterBinary   string
}

type DocumentParserFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	vertexClient     *gcp.VertexClient
	pipeline         *pipeline.Pipeline
	config           DocumentParserConfig
}

type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// loadParserConfig loads and validates all necessary environment variables for this service.
func loadParserConfig() (*DocumentParserConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	resultsBucket := gcp.GetEnv("RESULTS_BUCKET", "")
	if resultsBucket == "" {
		return nil, fmt.Errorf("RESULTS_BUCKET environment variable must be set")
	}
	dpi, err := gcp.GetEnvInt("RENDER_DPI", 300)
	if err != nil {
		return nil, err
	}
	workers, err := gcp.GetEnvInt("PAGE_WORKERS", 1)
	if err != nil {
		return nil, err
	}

	return &DocumentParserConfig{
		ProjectID:         projectID,
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		DetectorModel:     gcp.GetEnv("DETECTOR_MODEL", gcp.DefaultLayoutModel),
		ResultsBucket:     resultsBucket,
		ArtifactsBucket:   gcp.GetEnv("ARTIFACTS_BUCKET", ""), // Optional mirror of page images and crops
		CollectionName:    gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		WorkflowID:        gcp.GetEnv("WORKFLOW_ID", ""), // Optional narration hand-off
		WorkflowLocation:  gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		PageImageDir:      gcp.GetEnv("PAGE_IMAGE_DIR", filepath.Join("out", "visual", "converted_images")),
		ParsedSectionsDir: gcp.GetEnv("PARSED_SECTIONS_DIR", filepath.Join("out", "visual", "parsed_sections")),
		RenderDPI:         dpi,
		OCRLanguage:       gcp.GetEnv("OCR_LANGUAGE", ocr.DefaultLanguage),
		PageWorkers:       workers,
		ConverterBinary:   gcp.GetEnv("CONVERTER_BINARY", render.DefaultConverterBinary),
	}, nil
}

func NewDocumentParser(ctx context.Context) (*DocumentParserFunction, error) {
	config, err := loadParserConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	var executionsClient *executions.Client
	if config.WorkflowID != "" {
		executionsClient, err = executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.DetectorModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	logger := slog.Default()
	p, err := pipeline.New(pipeline.Config{
		PageImageDir:      config.PageImageDir,
		ParsedSectionsDir: config.ParsedSectionsDir,
		DPI:               config.RenderDPI,
		Language:          config.OCRLanguage,
		PageWorkers:       config.PageWorkers,
	}, pipeline.Capabilities{
		Rasterizer: render.NewFitzRasterizer(),
		Converter:  render.NewLibreOfficeConverter(config.ConverterBinary, logger),
		Detector:   detect.NewGeminiDetector(vertexClient),
		Recognizer: ocr.NewTesseractRecognizer(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	f := &DocumentParserFunction{
		firestoreClient:  firestoreClient,
		storageClient:    storageClient,
		executionsClient: executionsClient,
		vertexClient:     vertexClient,
		pipeline:         p,
		config:           *config,
	}
	slog.Info("Document parser initialized.", "detectorModel", config.DetectorModel, "dpi", config.RenderDPI, "pageWorkers", config.PageWorkers)
	return f, nil
}

func (f *DocumentParserFunction) Process(ctx context.Context, e GCSEvent) error {
	start := time.Now()
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp("", "document-parser-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	filename := path.Base(e.Name)
	sourcePath := filepath.Join(tempDir, "source"+filepath.Ext(filename))
	if err := f.streamGCSObject(ctx, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return nil // Clean exit for a duplicate
	}

	format := pipeline.DetectFormat(filename)
	docRef, err := f.createInitialDocument(ctx, fileHash, filename, format)
	if err != nil {
		logCtx.Error("Failed to create initial Firestore document", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", docRef.ID)
	logCtx.Info("Created run record in Firestore.")

	if format == pipeline.FormatPDF {
		f.recordPageCount(ctx, logCtx, docRef, sourcePath)
	}

	pages, err := f.parse(ctx, sourcePath, filename)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to parse document", err)
	}

	if err := f.uploadArtifacts(ctx, logCtx, docRef, filename, len(pages)); err != nil {
		// Error is already logged and handled in uploadArtifacts
		return err
	}

	result := models.ParseResult{
		DocumentID:     docRef.ID,
		Filename:       filename,
		Pages:          pages,
		ProcessingTime: math.Round(time.Since(start).Seconds()*100) / 100,
	}
	resultURI, err := f.saveResult(ctx, docRef, result)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to save parse result", err)
	}

	updates := []firestore.Update{
		{Path: "status", Value: models.StatusParsed},
		{Path: "pageCount", Value: len(pages)},
		{Path: "resultGcsUri", Value: resultURI},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to update status to PARSED", err)
	}
	logCtx.Info("Document parsed.", "pageCount", len(pages), "resultGcsUri", resultURI, "processingTime", result.ProcessingTime)

	if err := f.triggerWorkflow(ctx, logCtx, docRef, resultURI); err != nil {
		// Error is already logged and handled in triggerWorkflow
		return err
	}
	return nil
}

// parse runs the pipeline over the downloaded file. The pipeline stages its
// own copy and deletes it before returning.
func (f *DocumentParserFunction) parse(ctx context.Context, sourcePath, filename string) ([]models.PageContent, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open downloaded document: %w", err)
	}
	defer src.Close()
	return f.pipeline.ProcessReader(ctx, src, filename)
}

func (f *DocumentParserFunction) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.CollectionName).
		Where("fileHash", "==", fileHash).
		Where("status", "==", models.StatusParsed).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *DocumentParserFunction) createInitialDocument(ctx context.Context, fileHash, filename string, format pipeline.Format) (*firestore.DocumentRef, error) {
	newDoc := models.Document{
		FileHash:         fileHash,
		OriginalFilename: filename,
		Format:           format.String(),
		Status:           models.StatusParsing,
		CreatedAt:        time.Now(),
	}
	docRef, _, err := f.firestoreClient.Collection(f.config.CollectionName).Add(ctx, newDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	return docRef, nil
}

// recordPageCount stores the page count pdfcpu reads from the upload. The
// rasterizer has the final say, so failures here are only logged.
func (f *DocumentParserFunction) recordPageCount(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, sourcePath string) {
	pageCount, err := render.PageCount(sourcePath)
	if err != nil {
		logCtx.Warn("Could not read page count before rendering.", "error", err)
		return
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "pageCount", Value: pageCount}}); err != nil {
		logCtx.Warn("Failed to record page count.", "error", err)
		return
	}
	logCtx.Info("Recorded page count.", "pageCount", pageCount)
}

func (f *DocumentParserFunction) uploadArtifacts(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, filename string, pageCount int) error {
	if f.config.ArtifactsBucket == "" {
		return nil
	}
	artifacts, err := f.pipeline.Artifacts(filename, pageCount)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to list artifacts", err)
	}

	logCtx.Info("Starting concurrent upload of artifacts.", "artifactCount", len(artifacts))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)

	bucket := f.storageClient.Bucket(f.config.ArtifactsBucket)
	for _, a := range artifacts {
		a := a
		destObject := path.Join(docRef.ID, a.Relative)
		eg.Go(func() error {
			if err := gcp.UploadFileWithRetry(gctx, bucket, a.Path, destObject); err != nil {
				return fmt.Errorf("%s: %w", a.Relative, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return f.handleError(ctx, logCtx, docRef, "one or more artifacts failed to upload", err)
	}
	logCtx.Info("All artifacts uploaded successfully.")
	return nil
}

func (f *DocumentParserFunction) saveResult(ctx context.Context, docRef *firestore.DocumentRef, result models.ParseResult) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parse result: %w", err)
	}
	objectName := fmt.Sprintf("%s/pages.json", docRef.ID)
	if err := gcp.SaveToGCSAtomically(ctx, f.storageClient.Bucket(f.config.ResultsBucket), objectName, string(payload)); err != nil {
		return "", err
	}
	return gcp.ObjectURI(f.config.ResultsBucket, objectName), nil
}

func (f *DocumentParserFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, resultURI string) error {
	if f.executionsClient == nil {
		return nil
	}
	logCtx.Info("Triggering narration workflow.")
	workflowPayload := map[string]interface{}{
		"documentId":   docRef.ID,
		"resultGcsUri": resultURI,
	}
	payloadBytes, err := json.Marshal(workflowPayload)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: exec.GetName()}}); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "error", err)
	}
	return nil
}

func (f *DocumentParserFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr, "errorKind", string(pipeline.KindOf(originalErr)))
	if err := f.markFailed(ctx, docRef, originalErr); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func (f *DocumentParserFunction) markFailed(ctx context.Context, docRef *firestore.DocumentRef, cause error) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorDetails", Value: cause.Error()},
	}
	if kind := pipeline.KindOf(cause); kind != "" {
		updates = append(updates, firestore.Update{Path: "errorKind", Value: string(kind)})
	}
	_, err := docRef.Update(ctx, updates)
	return err
}

func (f *DocumentParserFunction) streamGCSObject(ctx context.Context, bucket, object, destPath string) error {
	gcsReader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// Close releases the service's clients.
func (f *DocumentParserFunction) Close() error {
	var firstErr error
	if err := f.vertexClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := f.firestoreClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := f.storageClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if f.executionsClient != nil {
		if err := f.executionsClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

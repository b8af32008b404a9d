// Package detect provides the Vertex AI Gemini backend for page layout detection.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/layoutnarrator/internal/gcp"
	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// boxScale is the normalization range of Gemini's box_2d coordinates.
const boxScale = 1000.0

// contentGenerator is the part of *genai.GenerativeModel the detector uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiDetector asks a Gemini model for the layout regions of a page image.
// The underlying client is safe for concurrent calls.
type GeminiDetector struct {
	model contentGenerator
}

// NewGeminiDetector returns a detector using the client's layout model.
func NewGeminiDetector(client *gcp.VertexClient) *GeminiDetector {
	return &GeminiDetector{model: client.LayoutModel}
}

// parsedRegion defines the structure of the JSON objects we expect from the Gemini response.
type parsedRegion struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box2D      []float64 `json:"box_2d"`
}

// Detect returns every region the model reports, in pixel space.
func (d *GeminiDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}

	resp, err := d.model.GenerateContent(ctx, genai.ImageData("jpeg", buf.Bytes()), genai.Text(gcp.LayoutUserPrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate layout from gemini: %w", err)
	}

	raw := extractJSONContent(resp)
	if raw == "" {
		return nil, fmt.Errorf("gemini returned an empty response instead of JSON")
	}
	b := img.Bounds()
	return parseDetections(raw, b.Dx(), b.Dy())
}

// parseDetections converts the model's JSON array into pixel-space detections.
func parseDetections(raw string, width, height int) ([]models.Detection, error) {
	var regions []parsedRegion
	if err := json.Unmarshal([]byte(raw), &regions); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from model: %w", err)
	}

	detections := make([]models.Detection, 0, len(regions))
	for i, r := range regions {
		label, ok := CanonicalLabel(r.Label)
		if !ok {
			return nil, fmt.Errorf("region %d: unknown label %q", i, r.Label)
		}
		if len(r.Box2D) != 4 {
			return nil, fmt.Errorf("region %d: box_2d must have 4 coordinates, got %d", i, len(r.Box2D))
		}
		ymin, xmin, ymax, xmax := r.Box2D[0], r.Box2D[1], r.Box2D[2], r.Box2D[3]
		detections = append(detections, models.Detection{
			Label:      label,
			Confidence: r.Confidence,
			X1:         xmin / boxScale * float64(width),
			Y1:         ymin / boxScale * float64(height),
			X2:         xmax / boxScale * float64(width),
			Y2:         ymax / boxScale * float64(height),
		})
	}
	return detections, nil
}

// CanonicalLabel maps a label to the detector vocabulary, ignoring case and
// treating spaces and underscores as hyphens.
func CanonicalLabel(label string) (string, bool) {
	key := normalizeLabel(label)
	for _, l := range models.Labels {
		if normalizeLabel(l) == key {
			return l, true
		}
	}
	return "", false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
}

// extractJSONContent robustly gets the raw text content from the model response.
func extractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	// Clean potential markdown fences just in case
	cleanJSON := strings.TrimSpace(sb.String())
	cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
	cleanJSON = strings.TrimPrefix(cleanJSON, "```")
	cleanJSON = strings.TrimSuffix(cleanJSON, "```")
	return strings.TrimSpace(cleanJSON)
}

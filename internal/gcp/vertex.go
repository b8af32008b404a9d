package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// DefaultLayoutModel is the Gemini model used for region detection.
const DefaultLayoutModel = "gemini-1.5-pro"

// --- Layout Detector Model Prompts ---
const LayoutSystemPrompt = "You are a document layout analyzer. You locate the structural regions of a rendered document page and label each one. You must output your response as a valid JSON array."
const LayoutUserPrompt = `Analyze the provided page image and detect every layout region on it.

Follow these rules precisely:
1.  Use exactly one of these labels for each region: Caption, Footnote, Formula, List-item, Page-footer, Page-header, Picture, Section-header, Table, Text, Title.
2.  Each list item is its own List-item region. Each paragraph is its own Text region.
3.  Create a JSON object for each region with exactly three keys:
    - "label": one of the labels above.
    - "confidence": a number between 0 and 1.
    - "box_2d": [ymin, xmin, ymax, xmax] normalized to 0-1000.
4.  The final output MUST be a single, valid JSON array of these objects. Return [] for a blank page. Do not include any text before or after the JSON array.`

// VertexClient holds the pre-configured generative models for our app.
type VertexClient struct {
	LayoutModel *genai.GenerativeModel
	baseClient  *genai.Client
}

// NewVertexClient creates a new client holding the layout detection model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultLayoutModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the layout model ---
	layoutModel := baseClient.GenerativeModel(modelName)
	layoutModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(LayoutSystemPrompt)},
	}
	layoutModel.GenerationConfig = genai.GenerationConfig{
		// Boxes are parsed as JSON, so force JSON output.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0), // Same page, same boxes.
	}
	layoutModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		LayoutModel: layoutModel,
		baseClient:  baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

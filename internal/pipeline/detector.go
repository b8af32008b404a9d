package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// Detector is the layout-detection capability. It is a pure function of the
// image and must be safe for concurrent calls; wrap it with Serialize otherwise.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]models.Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	return f(ctx, img)
}

type serializedDetector struct {
	mu sync.Mutex
	d  Detector
}

// Serialize guards a detector that cannot run concurrent inference.
func Serialize(d Detector) Detector {
	return &serializedDetector{d: d}
}

func (s *serializedDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Detect(ctx, img)
}

// detectRegions runs the detector once and validates every box against the
// page bounds. All detections are kept regardless of confidence.
func detectRegions(ctx context.Context, d Detector, page int, img image.Image) ([]models.Region, int, error) {
	detections, err := d.Detect(ctx, img)
	if err != nil {
		return nil, 0, NewError(KindDetectionFailure, page, "detector failed", err)
	}

	bounds := img.Bounds()
	regions := make([]models.Region, 0, len(detections))
	clamped := 0
	for i, det := range detections {
		r, wasClamped, err := toRegion(det, bounds)
		if err != nil {
			return nil, 0, NewError(KindDetectionFailure, page, fmt.Sprintf("malformed detection %d", i), err)
		}
		if wasClamped {
			clamped++
		}
		regions = append(regions, r)
	}
	return regions, clamped, nil
}

func toRegion(det models.Detection, bounds image.Rectangle) (models.Region, bool, error) {
	if det.Label == "" {
		return models.Region{}, false, fmt.Errorf("missing label")
	}
	for _, v := range []float64{det.X1, det.Y1, det.X2, det.Y2, det.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Region{}, false, fmt.Errorf("non-finite value in %q box", det.Label)
		}
	}
	if det.X2 < det.X1 || det.Y2 < det.Y1 {
		return models.Region{}, false, fmt.Errorf("inverted %q box (%.0f,%.0f,%.0f,%.0f)", det.Label, det.X1, det.Y1, det.X2, det.Y2)
	}

	// Grow fractional boxes outward so thin regions keep at least one pixel.
	raw := image.Rect(
		int(math.Floor(det.X1)), int(math.Floor(det.Y1)),
		int(math.Ceil(det.X2)), int(math.Ceil(det.Y2)),
	)
	rect := raw.Intersect(bounds)
	if rect.Empty() {
		return models.Region{}, false, fmt.Errorf("%q box %v is empty or outside page %v", det.Label, raw, bounds)
	}
	return models.Region{
		Label:      det.Label,
		Confidence: det.Confidence,
		X1:         rect.Min.X,
		Y1:         rect.Min.Y,
		X2:         rect.Max.X,
		Y2:         rect.Max.Y,
	}, rect != raw, nil
}

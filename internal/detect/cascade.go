package detect

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/logger"
)

// Haar cascades emit no per-detection score, so the adapter reports a
// fixed confidence and leaves thresholding decisions to the policy.
const cascadeConfidence = 0.9

// CascadeDetector is the bundled reference detector: a Haar cascade run
// on the grayscale processing frame. Deployments with a dedicated model
// service provide their own Detector instead.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	minSize    image.Point
	log        logger.Logger
}

// NewCascadeDetector loads the cascade model at path. A missing or
// unreadable model is a startup failure, not a degraded mode.
func NewCascadeDetector(path string, log logger.Logger) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade model from %s", path)
	}

	log.Info("CascadeDetector", "cascade model loaded", map[string]interface{}{
		"path": path,
	})

	return &CascadeDetector{
		classifier: classifier,
		minSize:    image.Pt(24, 24),
		log:        log,
	}, nil
}

func (d *CascadeDetector) Detect(ctx context.Context, buf *frame.Buffer) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(buf.Mat(), &gray, gocv.ColorRGBAToGray)

	rects := d.classifier.DetectMultiScaleWithParams(
		gray, 1.1, 4, 0, d.minSize, image.Pt(0, 0))

	detections := make([]Detection, 0, len(rects))
	for _, r := range rects {
		det := Detection{
			Region:     r,
			Confidence: cascadeConfidence,
			StableID:   StableID(r),
		}
		detections = append(detections, Clip(det, buf.Width(), buf.Height()))
	}

	return detections, nil
}

func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}

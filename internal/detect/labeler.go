package detect

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/logger"
)

const labelerConfidence = 0.85

// CascadeLabeler is the bundled reference classifier: a cascade trained
// for one label, run against the candidate region. A hit labels the
// region; a miss is unknown. Pose is reported unknown when the hit
// covers only part of the region, which discounts its confidence
// downstream.
type CascadeLabeler struct {
	classifier gocv.CascadeClassifier
	label      string
	log        logger.Logger
}

func NewCascadeLabeler(path, label string, log logger.Logger) (*CascadeLabeler, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load labeler model from %s", path)
	}

	log.Info("CascadeLabeler", "labeler model loaded", map[string]interface{}{
		"path":  path,
		"label": label,
	})

	return &CascadeLabeler{
		classifier: classifier,
		label:      label,
		log:        log,
	}, nil
}

func (l *CascadeLabeler) Classify(ctx context.Context, buf *frame.Buffer, region image.Rectangle) (Classification, error) {
	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}

	region = region.Intersect(image.Rect(0, 0, buf.Width(), buf.Height()))
	if region.Empty() {
		return Classification{Label: "", Confidence: 0, Pose: PoseUnknown}, nil
	}

	src := buf.Mat()
	roi := src.Region(region)
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorRGBAToGray)

	hits := l.classifier.DetectMultiScale(gray)
	if len(hits) == 0 {
		return Classification{Confidence: 0, Pose: PoseUnknown}, nil
	}

	pose := PoseFrontal
	if hits[0].Dx()*2 < region.Dx() {
		pose = PoseUnknown
	}

	return Classification{
		Label:      l.label,
		Confidence: labelerConfidence,
		Pose:       pose,
	}, nil
}

func (l *CascadeLabeler) Close() error {
	return l.classifier.Close()
}

// Package detect defines the detection and classification contracts the
// pipeline consumes. Both are synchronous calls from the orchestrator
// context and must not retain the frame buffer past the call's return.
package detect

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"

	"screenveil/internal/frame"
)

// Pose describes the subject orientation a classifier observed. The
// filter policy discounts classification confidence for non-frontal
// poses before thresholding.
type Pose int

const (
	PoseFrontal Pose = iota
	PoseProfile
	PoseUnknown
)

// Detection is one candidate subject region in processing space.
// Region is always clipped to the source frame bounds and Confidence is
// always in [0,1].
type Detection struct {
	Region     image.Rectangle
	Confidence float64
	Label      string
	StableID   string
}

// Detector finds candidate subject regions in a frame. Errors surface
// as (nil, err); implementations never panic across this boundary.
type Detector interface {
	Detect(ctx context.Context, buf *frame.Buffer) ([]Detection, error)
	Close() error
}

// Classification is a label with its raw model confidence and the pose
// it was observed under.
type Classification struct {
	Label      string
	Confidence float64
	Pose       Pose
}

// Classifier assigns a label to one region of a frame. Optional: the
// pipeline runs without one, in which case every detection above the
// confidence threshold is obscured.
type Classifier interface {
	Classify(ctx context.Context, buf *frame.Buffer, region image.Rectangle) (Classification, error)
	Close() error
}

// stableIDQuantum tolerates detector jitter: regions whose quantized
// center and size match are treated as the same stationary subject
// across consecutive cycles.
const stableIDQuantum = 8

// StableID derives a deterministic identifier from a region's geometry
// so repeated detections of the same stationary subject share an id.
func StableID(r image.Rectangle) string {
	cx := (r.Min.X + r.Max.X) / 2 / stableIDQuantum
	cy := (r.Min.Y + r.Max.Y) / 2 / stableIDQuantum
	w := r.Dx() / stableIDQuantum
	h := r.Dy() / stableIDQuantum

	hasher := fnv.New64a()
	fmt.Fprintf(hasher, "%d:%d:%d:%d", cx, cy, w, h)
	return fmt.Sprintf("%016x", hasher.Sum64())
}

// Clip bounds a detection region to the frame it was produced from and
// clamps confidence into [0,1].
func Clip(d Detection, width, height int) Detection {
	d.Region = d.Region.Intersect(image.Rect(0, 0, width, height))
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	return d
}

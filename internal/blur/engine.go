// Package blur produces the obscured frame for one cycle. Both engines
// honor the same contract: output dimensions and format match the
// input, pixels outside the padded job regions are bit-identical to the
// input, and pixels inside are irreversibly obscured, with a translucent
// flat tint composited on top as an independent second layer.
package blur

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/geometry"
	"screenveil/internal/logger"
	"screenveil/internal/policy"
)

// tintAlpha is owned by the engine, not the config: the second
// obscuration layer must not be tunable below usefulness.
const tintAlpha = 0.3

var tintColor = gocv.NewScalar(96, 96, 96, 255)

// Engine applies a blur job to a frame, returning a new buffer the
// caller owns. The input buffer is left untouched and still owned by
// the caller.
type Engine interface {
	Apply(buf *frame.Buffer, job policy.BlurJob) (*frame.Buffer, error)
	Name() string
}

// NewEngine picks the engine for this platform. The Gaussian primitive
// is preferred; when it is unavailable, or acceleration is disabled by
// config, the deterministic pixelation transform substitutes under the
// same contract.
func NewEngine(strength int, preferAccelerated bool, alloc *frame.Allocator, log logger.Logger) Engine {
	if preferAccelerated && gaussianAvailable() {
		return newGaussianEngine(strength, alloc)
	}

	log.Info("BlurEngine", "gaussian blur unavailable or disabled, using pixelation fallback", map[string]interface{}{
		"prefer_accelerated": preferAccelerated,
	})
	return newPixelateEngine(strength, alloc)
}

// gaussianAvailable probes the native blur primitive once at startup.
// OpenCV raises through cgo as a panic when the primitive is missing on
// the running platform.
func gaussianAvailable() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	probe := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC4)
	defer probe.Close()
	gocv.GaussianBlur(probe, &probe, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
	return true
}

// copyForJob allocates the output buffer and copies the input into it.
// Per-region work then mutates only the output.
func copyForJob(buf *frame.Buffer, alloc *frame.Allocator) (*frame.Buffer, error) {
	out, err := alloc.Get(buf.Height(), buf.Width(), buf.MatType(), buf.CapturedAt())
	if err != nil {
		return nil, fmt.Errorf("allocate output buffer: %w", err)
	}
	src := buf.Mat()
	dst := out.Mat()
	src.CopyTo(&dst)
	return out, nil
}

// jobRegions pads and clips the job's regions to the frame, dropping
// any that degenerate to empty.
func jobRegions(buf *frame.Buffer, job policy.BlurJob) []image.Rectangle {
	bounds := image.Pt(buf.Width(), buf.Height())
	regions := make([]image.Rectangle, 0, len(job.Regions))
	for _, r := range job.Regions {
		padded := geometry.Pad(r, job.Padding, bounds)
		if !padded.Empty() {
			regions = append(regions, padded)
		}
	}
	return regions
}

// tintRegion composites the translucent flat overlay onto one region of
// the output mat, in place.
func tintRegion(dst gocv.Mat, r image.Rectangle) {
	roi := dst.Region(r)
	defer roi.Close()

	tint := gocv.NewMatWithSizeFromScalar(tintColor, roi.Rows(), roi.Cols(), roi.Type())
	defer tint.Close()

	gocv.AddWeighted(roi, 1-tintAlpha, tint, tintAlpha, 0, &roi)
}

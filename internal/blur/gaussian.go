package blur

import (
	"image"

	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/policy"
)

// blurPasses > 1 guards against kernels with a bounded maximum radius:
// repeated filtering makes the result unrecoverable by a single
// deconvolution pass.
const blurPasses = 2

type gaussianEngine struct {
	kernel image.Point
	alloc  *frame.Allocator
}

func newGaussianEngine(strength int, alloc *frame.Allocator) *gaussianEngine {
	// Map strength 1-10 onto an odd kernel size in [7, 43].
	k := strength*4 + 3
	if k%2 == 0 {
		k++
	}
	return &gaussianEngine{
		kernel: image.Pt(k, k),
		alloc:  alloc,
	}
}

func (e *gaussianEngine) Name() string { return "gaussian" }

func (e *gaussianEngine) Apply(buf *frame.Buffer, job policy.BlurJob) (*frame.Buffer, error) {
	out, err := copyForJob(buf, e.alloc)
	if err != nil {
		return nil, err
	}

	dst := out.Mat()
	for _, r := range jobRegions(buf, job) {
		roi := dst.Region(r)
		for pass := 0; pass < blurPasses; pass++ {
			gocv.GaussianBlur(roi, &roi, e.kernel, 0, 0, gocv.BorderDefault)
		}
		roi.Close()
		tintRegion(dst, r)
	}

	return out, nil
}

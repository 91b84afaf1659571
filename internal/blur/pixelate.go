package blur

import (
	"image"

	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/policy"
)

type pixelateEngine struct {
	factor int
	alloc  *frame.Allocator
}

func newPixelateEngine(strength int, alloc *frame.Allocator) *pixelateEngine {
	// Map strength 1-10 onto a downscale factor in [6, 24].
	return &pixelateEngine{
		factor: strength*2 + 4,
		alloc:  alloc,
	}
}

func (e *pixelateEngine) Name() string { return "pixelate" }

func (e *pixelateEngine) Apply(buf *frame.Buffer, job policy.BlurJob) (*frame.Buffer, error) {
	out, err := copyForJob(buf, e.alloc)
	if err != nil {
		return nil, err
	}

	dst := out.Mat()
	for _, r := range jobRegions(buf, job) {
		e.pixelate(dst, r)
		tintRegion(dst, r)
	}

	return out, nil
}

// pixelate downscales the region then blows it back up with
// nearest-neighbor interpolation, collapsing each cell to one color.
func (e *pixelateEngine) pixelate(dst gocv.Mat, r image.Rectangle) {
	roi := dst.Region(r)
	defer roi.Close()

	small := gocv.NewMat()
	defer small.Close()

	downW := max(1, r.Dx()/e.factor)
	downH := max(1, r.Dy()/e.factor)
	gocv.Resize(roi, &small, image.Pt(downW, downH), 0, 0, gocv.InterpolationArea)
	gocv.Resize(small, &roi, image.Pt(r.Dx(), r.Dy()), 0, 0, gocv.InterpolationNearestNeighbor)
}

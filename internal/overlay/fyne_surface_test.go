package overlay

import (
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/logger"
)

func processedBuffer(t *testing.T, alloc *frame.Allocator) *frame.Buffer {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 255), 8, 8, gocv.MatTypeCV8UC4)
	buf, err := alloc.Adopt(mat, time.Now())
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	return buf
}

func TestRegionImagesDrawOnlyTheMappedRegions(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	buf := processedBuffer(t, alloc)
	defer buf.Release()

	pf := ProcessedFrame{Buffer: buf, Regions: []Region{{
		Processing: image.Rect(2, 2, 6, 6),
		Screen:     image.Rect(100, 100, 300, 300),
	}}}

	objects := regionImages(pf, logger.Nop{})
	if len(objects) != 1 {
		t.Fatalf("expected exactly one drawn region, got %d", len(objects))
	}

	img, ok := objects[0].(*canvas.Image)
	if !ok {
		t.Fatalf("expected a canvas image, got %T", objects[0])
	}
	if pos := img.Position(); pos != fyne.NewPos(100, 100) {
		t.Fatalf("region drawn at %v, want screen-space origin (100,100)", pos)
	}
	if size := img.Size(); size != fyne.NewSize(200, 200) {
		t.Fatalf("region drawn at size %v, want the screen-space extent 200x200", size)
	}
	if b := img.Image.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("drawn pixels are %dx%d, want the 4x4 processing-space crop", b.Dx(), b.Dy())
	}
}

func TestRegionImagesEmptyFrameDrawsNothing(t *testing.T) {
	if objects := regionImages(ProcessedFrame{}, logger.Nop{}); len(objects) != 0 {
		t.Fatalf("empty frame must leave the surface fully transparent, got %d objects", len(objects))
	}
}

func TestRegionImagesSkipDegenerateRegions(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	buf := processedBuffer(t, alloc)
	defer buf.Release()

	pf := ProcessedFrame{Buffer: buf, Regions: []Region{
		{Processing: image.Rect(20, 20, 30, 30), Screen: image.Rect(0, 0, 10, 10)}, // outside the buffer
		{Processing: image.Rect(0, 0, 4, 4), Screen: image.Rectangle{}},            // nowhere to place it
	}}

	if objects := regionImages(pf, logger.Nop{}); len(objects) != 0 {
		t.Fatalf("degenerate regions must not be drawn, got %d objects", len(objects))
	}
}

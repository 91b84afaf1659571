package geometry

import (
	"image"
	"testing"
)

func TestToScreenSpaceScalesByResolutionRatio(t *testing.T) {
	processing := image.Pt(360, 800)
	screen := image.Pt(1080, 2400)

	got := ToScreenSpace(image.Rect(10, 10, 60, 60), processing, screen)
	want := image.Rect(30, 30, 180, 180)
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestToScreenSpaceClampsToScreenBounds(t *testing.T) {
	processing := image.Pt(360, 800)
	screen := image.Pt(1080, 2400)

	got := ToScreenSpace(image.Rect(300, 700, 420, 900), processing, screen)
	if got.Max.X > screen.X || got.Max.Y > screen.Y {
		t.Fatalf("mapped rect %v exceeds screen bounds %v", got, screen)
	}
	if got.Min.X < 0 || got.Min.Y < 0 {
		t.Fatalf("mapped rect %v has negative origin", got)
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	processing := image.Pt(480, 1068)
	screen := image.Pt(1440, 3200)

	rects := []image.Rectangle{
		image.Rect(0, 0, 480, 1068),
		image.Rect(10, 10, 50, 50),
		image.Rect(113, 227, 391, 954),
		image.Rect(1, 1, 2, 2),
	}

	for _, r := range rects {
		back := ToProcessingSpace(ToScreenSpace(r, processing, screen), processing, screen)
		if absInt(back.Min.X-r.Min.X) > 1 || absInt(back.Min.Y-r.Min.Y) > 1 ||
			absInt(back.Max.X-r.Max.X) > 1 || absInt(back.Max.Y-r.Max.Y) > 1 {
			t.Fatalf("round trip of %v drifted to %v", r, back)
		}
	}
}

func TestPadExpandsAndClips(t *testing.T) {
	bounds := image.Pt(360, 800)

	got := Pad(image.Rect(100, 100, 200, 200), 0.15, bounds)
	want := image.Rect(85, 85, 215, 215)
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}

	edge := Pad(image.Rect(0, 0, 40, 40), 0.25, bounds)
	if edge.Min.X != 0 || edge.Min.Y != 0 {
		t.Fatalf("expected clip at origin, got %v", edge)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

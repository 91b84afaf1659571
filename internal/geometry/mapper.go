// Package geometry maps rectangles between the pipeline's coordinate
// spaces: processing space (the downscaled capture resolution the
// detector sees) and screen space (the device's native resolution, which
// the overlay surface shares). Mapping is a pair of independent linear
// scale factors, recomputed from the sizes on every call so a processing
// resolution change can never act through a stale cached factor.
package geometry

import "image"

// ToScreenSpace scales r from processing space into screen space and
// clamps the result to the screen bounds.
func ToScreenSpace(r image.Rectangle, processing, screen image.Point) image.Rectangle {
	sx := float64(screen.X) / float64(processing.X)
	sy := float64(screen.Y) / float64(processing.Y)
	return clamp(scale(r, sx, sy), screen)
}

// ToProcessingSpace is the inverse of ToScreenSpace.
func ToProcessingSpace(r image.Rectangle, processing, screen image.Point) image.Rectangle {
	sx := float64(processing.X) / float64(screen.X)
	sy := float64(processing.Y) / float64(screen.Y)
	return clamp(scale(r, sx, sy), processing)
}

// Pad expands r outward by fraction of its width/height on every side,
// then clips it back to bounds. Used to overscan blur regions so the
// obscured area covers the subject even when the detector under-reports
// its extent.
func Pad(r image.Rectangle, fraction float64, bounds image.Point) image.Rectangle {
	dx := int(float64(r.Dx()) * fraction)
	dy := int(float64(r.Dy()) * fraction)
	padded := image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
	return clamp(padded, bounds)
}

func scale(r image.Rectangle, sx, sy float64) image.Rectangle {
	return image.Rect(
		roundToInt(float64(r.Min.X)*sx),
		roundToInt(float64(r.Min.Y)*sy),
		roundToInt(float64(r.Max.X)*sx),
		roundToInt(float64(r.Max.Y)*sy),
	)
}

func clamp(r image.Rectangle, bounds image.Point) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, bounds.X, bounds.Y))
}

func roundToInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}

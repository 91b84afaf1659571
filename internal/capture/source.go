// Package capture wraps the platform screen-grab mechanism behind a
// pull-based source. The pipeline never registers a callback; it polls
// AcquireLatest on its own schedule. The source keeps at most one ready
// buffer: an unclaimed frame is replaced, never queued, so a slow
// consumer sees the freshest screen content instead of a backlog.
package capture

import (
	"context"
	"image"

	"screenveil/internal/frame"
)

// Source produces processing-resolution frames of the visible screen.
type Source interface {
	// Start negotiates resolutions with the platform and begins
	// producing. All-or-nothing: on error nothing is running.
	Start(ctx context.Context) error

	// AcquireLatest returns the ready buffer (ownership transfers to
	// the caller) or nil when no frame is ready yet. Never blocks.
	AcquireLatest() *frame.Buffer

	// ScreenSize is the device resolution negotiated at Start.
	ScreenSize() image.Point

	// ProcessingSize is the downscaled resolution frames are produced at.
	ProcessingSize() image.Point

	// Stop ends production and releases any unclaimed buffer.
	Stop() error
}

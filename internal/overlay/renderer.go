// Package overlay owns the last processed frame and keeps the
// transparent full-screen surface in sync with it. All mutation of the
// current pair is marshaled onto the render context; producer-side code
// never touches the drawing surface directly.
package overlay

import (
	"image"
	"sync"

	"screenveil/internal/events"
	"screenveil/internal/frame"
	"screenveil/internal/logger"
)

// Region pairs one obscured rectangle's crop bounds in the processed
// buffer with its placement on the screen. The surface draws only these
// rectangles; everything outside them stays transparent.
type Region struct {
	Processing image.Rectangle
	Screen     image.Rectangle
}

// ProcessedFrame is the unit handed over by the pipeline: the obscured
// buffer plus the kept regions already mapped into screen space.
type ProcessedFrame struct {
	Buffer  *frame.Buffer
	Regions []Region
}

// Surface abstracts the platform drawing primitives. RunOnRenderContext
// marshals fn onto the context that owns the surface and is the only
// place renderer state may be mutated from.
type Surface interface {
	Attach() error
	Detach() error
	RequestRepaint()
	RunOnRenderContext(fn func())
}

// Renderer holds exactly one current (buffer, regions) pair. Present
// swaps it atomically from the consumer's point of view; the superseded
// buffer is released strictly after the next paint pass begins, so a
// paint in progress can never observe a freed buffer.
type Renderer struct {
	surface Surface
	log     logger.Logger
	bus     *events.Bus

	// mu guards current/retiring for inspection from tests and
	// diagnostics; writes happen only on the render context.
	mu       sync.Mutex
	current  ProcessedFrame
	retiring *frame.Buffer
}

func NewRenderer(surface Surface, bus *events.Bus, log logger.Logger) *Renderer {
	return &Renderer{
		surface: surface,
		bus:     bus,
		log:     log,
	}
}

// Present installs pf as the current pair and schedules a repaint.
// Ownership of pf.Buffer transfers to the renderer.
func (r *Renderer) Present(pf ProcessedFrame) {
	r.surface.RunOnRenderContext(func() {
		r.swap(pf)
	})
	r.surface.RequestRepaint()
}

// Clear replaces the current pair with an empty one and forces an
// immediate repaint so stale obscured content never lingers after its
// subject moved away.
func (r *Renderer) Clear() {
	r.surface.RunOnRenderContext(func() {
		r.swap(ProcessedFrame{})
	})
	r.surface.RequestRepaint()
}

func (r *Renderer) swap(pf ProcessedFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retiring != nil {
		// A third live buffer means a paint never ran between two
		// presents. Halt in debug mode; otherwise self-heal by
		// releasing the oldest and report it.
		if frame.DebugChecksEnabled() {
			panic("overlay renderer holding more than two buffers")
		}
		r.log.Warning("OverlayRenderer", "buffer retired before paint, forcing release", map[string]interface{}{
			"buffer_id": r.retiring.ID(),
		})
		if r.bus != nil {
			r.bus.Publish(events.Event{
				Type: events.TypeDiagnostic,
				Data: map[string]interface{}{
					"violation": "overlay holding more than two buffers",
					"buffer_id": r.retiring.ID(),
				},
			})
		}
		r.retiring.Release()
	}

	r.retiring = r.current.Buffer
	r.current = pf
}

// BeginPaint is called by the surface at the start of every paint pass.
// It releases the buffer superseded by the last swap and returns the
// pair to draw. The returned buffer stays owned by the renderer and is
// valid at least until the next swap completes a following paint.
func (r *Renderer) BeginPaint() ProcessedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retiring != nil {
		r.retiring.Release()
		r.retiring = nil
	}
	return r.current
}

// Shutdown releases whatever the renderer still holds and detaches the
// surface. It blocks until the render context has run the release, so
// callers may tear the event loop down as soon as it returns.
func (r *Renderer) Shutdown() error {
	done := make(chan struct{})
	r.surface.RunOnRenderContext(func() {
		defer close(done)
		r.mu.Lock()
		if r.retiring != nil {
			r.retiring.Release()
			r.retiring = nil
		}
		if r.current.Buffer != nil {
			r.current.Buffer.Release()
		}
		r.current = ProcessedFrame{}
		r.mu.Unlock()
	})
	<-done
	return r.surface.Detach()
}

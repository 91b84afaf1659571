package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/vova616/screenshot"
	"gocv.io/x/gocv"

	"screenveil/internal/frame"
	"screenveil/internal/logger"
)

// ScreenSource grabs the active screen and downscales it to the
// configured processing width. Grabbing runs on its own goroutine with
// single-slot mailbox semantics: AcquireLatest empties the slot and
// requests the next grab, and a grab finding the slot still full drops
// the stale frame.
type ScreenSource struct {
	processingWidth int
	alloc           *frame.Allocator
	log             logger.Logger

	screenSize     image.Point
	processingSize image.Point

	mu       sync.Mutex
	slot     *frame.Buffer
	requests chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
}

func NewScreenSource(processingWidth int, alloc *frame.Allocator, log logger.Logger) *ScreenSource {
	return &ScreenSource{
		processingWidth: processingWidth,
		alloc:           alloc,
		log:             log,
		requests:        make(chan struct{}, 1),
	}
}

func (s *ScreenSource) Start(ctx context.Context) error {
	rect, err := screenshot.ScreenRect()
	if err != nil {
		return fmt.Errorf("negotiate screen resolution: %w", err)
	}
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return fmt.Errorf("degenerate screen resolution %v", rect)
	}

	s.screenSize = image.Pt(rect.Dx(), rect.Dy())
	ph := int(float64(rect.Dy())*float64(s.processingWidth)/float64(rect.Dx()) + 0.5)
	s.processingSize = image.Pt(s.processingWidth, ph)

	s.log.Info("CaptureSource", "resolution negotiated", map[string]interface{}{
		"screen":     fmt.Sprintf("%dx%d", s.screenSize.X, s.screenSize.Y),
		"processing": fmt.Sprintf("%dx%d", s.processingSize.X, s.processingSize.Y),
	})

	grabCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.grabLoop(grabCtx)
	s.requestGrab()
	return nil
}

func (s *ScreenSource) ScreenSize() image.Point     { return s.screenSize }
func (s *ScreenSource) ProcessingSize() image.Point { return s.processingSize }

func (s *ScreenSource) AcquireLatest() *frame.Buffer {
	s.mu.Lock()
	buf := s.slot
	s.slot = nil
	s.mu.Unlock()

	// Whether or not a frame was ready, line up the next grab.
	s.requestGrab()
	return buf
}

func (s *ScreenSource) requestGrab() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

func (s *ScreenSource) grabLoop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requests:
		}

		buf, err := s.grab()
		if err != nil {
			s.log.Warning("CaptureSource", "screen grab failed", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		s.mu.Lock()
		stale := s.slot
		s.slot = buf
		s.mu.Unlock()
		if stale != nil {
			stale.Release()
		}
	}
}

func (s *ScreenSource) grab() (*frame.Buffer, error) {
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}

	full, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("convert capture to mat: %w", err)
	}
	defer full.Close()

	buf, err := s.alloc.Get(s.processingSize.Y, s.processingSize.X, gocv.MatTypeCV8UC4, time.Now())
	if err != nil {
		return nil, err
	}

	dst := buf.Mat()
	gocv.Resize(full, &dst, s.processingSize, 0, 0, gocv.InterpolationArea)
	return buf, nil
}

func (s *ScreenSource) Stop() error {
	if !s.started {
		return nil
	}
	s.cancel()
	<-s.done

	s.mu.Lock()
	if s.slot != nil {
		s.slot.Release()
		s.slot = nil
	}
	s.started = false
	s.mu.Unlock()

	s.log.Info("CaptureSource", "capture stopped", nil)
	return nil
}

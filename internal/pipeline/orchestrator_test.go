package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"screenveil/internal/capture"
	"screenveil/internal/detect"
	"screenveil/internal/frame"
	"screenveil/internal/logger"
	"screenveil/internal/overlay"
	"screenveil/internal/policy"
)

// fakeSource hands out pre-filled buffers in order, nil afterwards.
type fakeSource struct {
	mu      sync.Mutex
	buffers []*frame.Buffer
}

var _ capture.Source = (*fakeSource)(nil)

func (s *fakeSource) Start(context.Context) error { return nil }
func (s *fakeSource) Stop() error                 { return nil }
func (s *fakeSource) ScreenSize() image.Point     { return image.Pt(1080, 2400) }
func (s *fakeSource) ProcessingSize() image.Point { return image.Pt(360, 800) }

func (s *fakeSource) AcquireLatest() *frame.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffers) == 0 {
		return nil
	}
	buf := s.buffers[0]
	s.buffers = s.buffers[1:]
	return buf
}

type fakeDetector struct {
	mu         sync.Mutex
	detections []detect.Detection
	err        error
	block      chan struct{} // when set, Detect blocks until closed
	calls      int
}

func (d *fakeDetector) Detect(ctx context.Context, buf *frame.Buffer) ([]detect.Detection, error) {
	d.mu.Lock()
	d.calls++
	block := d.block
	d.mu.Unlock()
	if block != nil {
		<-block
	}
	return d.detections, d.err
}

func (d *fakeDetector) Close() error { return nil }

// fakeEngine allocates a fresh output buffer of the input's shape.
type fakeEngine struct {
	alloc *frame.Allocator
	err   error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Apply(buf *frame.Buffer, job policy.BlurJob) (*frame.Buffer, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.alloc.Get(buf.Height(), buf.Width(), buf.MatType(), buf.CapturedAt())
}

type fakePresenter struct {
	mu       sync.Mutex
	presents []overlay.ProcessedFrame
	clears   int
}

func (p *fakePresenter) Present(pf overlay.ProcessedFrame) {
	p.mu.Lock()
	p.presents = append(p.presents, pf)
	p.mu.Unlock()
}

func (p *fakePresenter) Clear() {
	p.mu.Lock()
	p.clears++
	p.mu.Unlock()
}

func (p *fakePresenter) releaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pf := range p.presents {
		pf.Buffer.Release()
	}
	p.presents = nil
}

// fillValue distinguishes frames: the orchestrator skips cycles whose
// content signature matches the previous completed cycle.
func sourceBuffer(t *testing.T, alloc *frame.Allocator, fillValue float64) *frame.Buffer {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(fillValue, fillValue, fillValue, 255), 800, 360, gocv.MatTypeCV8UC4)
	buf, err := alloc.Adopt(mat, time.Now())
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	return buf
}

func noClassifierPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.New(nil, "child", 0.6, logger.Nop{})
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	return p
}

func TestCycleBlursDetectionAndMapsRegionsToScreenSpace(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	region := image.Rect(10, 10, 60, 60)
	source := &fakeSource{buffers: []*frame.Buffer{sourceBuffer(t, alloc, 10)}}
	detector := &fakeDetector{detections: []detect.Detection{{
		Region:     region,
		Confidence: 0.9,
		StableID:   detect.StableID(region),
	}}}
	presenter := &fakePresenter{}
	orch := NewOrchestrator(source, detector, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, presenter, logger.Nop{})

	if !orch.RunCycle(context.Background()) {
		t.Fatalf("cycle must run")
	}

	if len(presenter.presents) != 1 {
		t.Fatalf("expected 1 present, got %d", len(presenter.presents))
	}
	pf := presenter.presents[0]
	if len(pf.Regions) != 1 {
		t.Fatalf("expected 1 mapped region, got %d", len(pf.Regions))
	}
	// The 50x50 region padded by 15% then scaled x3: contains the raw
	// x3 mapping of the unpadded region.
	raw := image.Rect(30, 30, 180, 180)
	if !raw.In(pf.Regions[0].Screen) {
		t.Fatalf("mapped region %v must cover the x3-scaled detection %v", pf.Regions[0].Screen, raw)
	}
	// The paired crop bounds stay in processing space and cover the
	// unpadded detection.
	if !region.In(pf.Regions[0].Processing) {
		t.Fatalf("crop bounds %v must cover the detection %v", pf.Regions[0].Processing, region)
	}
	if !pf.Regions[0].Processing.In(image.Rect(0, 0, 360, 800)) {
		t.Fatalf("crop bounds %v exceed the processing frame", pf.Regions[0].Processing)
	}

	presenter.releaseAll()
	if n := alloc.Active(); n != 0 {
		t.Fatalf("buffer leak: %d active after release", n)
	}
}

func TestNoDetectionsClearsOverlayInsteadOfSkipping(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	source := &fakeSource{buffers: []*frame.Buffer{sourceBuffer(t, alloc, 20)}}
	detector := &fakeDetector{}
	presenter := &fakePresenter{}
	orch := NewOrchestrator(source, detector, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, presenter, logger.Nop{})

	orch.RunCycle(context.Background())

	if presenter.clears != 1 {
		t.Fatalf("empty selection must clear the overlay, got %d clears", presenter.clears)
	}
	if len(presenter.presents) != 0 {
		t.Fatalf("nothing should be presented on an empty selection")
	}
	if n := alloc.Active(); n != 0 {
		t.Fatalf("buffer leak on the clear path: %d active", n)
	}
}

func TestSingleFlightDropsConcurrentTicks(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	block := make(chan struct{})
	source := &fakeSource{buffers: []*frame.Buffer{
		sourceBuffer(t, alloc, 30),
		sourceBuffer(t, alloc, 40),
	}}
	detector := &fakeDetector{block: block}
	presenter := &fakePresenter{}
	orch := NewOrchestrator(source, detector, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, presenter, logger.Nop{})

	firstDone := make(chan struct{})
	go func() {
		orch.RunCycle(context.Background())
		close(firstDone)
	}()

	// Wait for the first cycle to reach the blocking detector.
	deadline := time.Now().Add(time.Second)
	for {
		detector.mu.Lock()
		calls := detector.calls
		detector.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first cycle never reached the detector")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 5; i++ {
		if orch.RunCycle(context.Background()) {
			t.Fatalf("tick %d must be dropped while a cycle is in flight", i)
		}
	}

	close(block)
	<-firstDone

	if snap := orch.Metrics().Snapshot(); snap.TicksDropped != 5 {
		t.Fatalf("expected 5 dropped ticks, got %d", snap.TicksDropped)
	}

	// Only the first frame was consumed; the second is still queued in
	// the source, exactly one clear happened.
	if presenter.clears != 1 {
		t.Fatalf("expected the unblocked cycle to clear, got %d clears", presenter.clears)
	}
	source.buffers[0].Release()
	if n := alloc.Active(); n != 0 {
		t.Fatalf("buffer leak: %d active", n)
	}
}

func TestBufferConservationAcrossFailurePaths(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	region := image.Rect(10, 10, 60, 60)
	det := detect.Detection{Region: region, Confidence: 0.9, StableID: detect.StableID(region)}

	t.Run("detector error", func(t *testing.T) {
		source := &fakeSource{buffers: []*frame.Buffer{sourceBuffer(t, alloc, 50)}}
		detector := &fakeDetector{err: errors.New("model crashed")}
		orch := NewOrchestrator(source, detector, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, &fakePresenter{}, logger.Nop{})

		orch.RunCycle(context.Background())
		if n := alloc.Active(); n != 0 {
			t.Fatalf("detector failure leaked %d buffers", n)
		}
		if snap := orch.Metrics().Snapshot(); snap.Failed != 1 {
			t.Fatalf("expected 1 failed cycle, got %d", snap.Failed)
		}
	})

	t.Run("blur error", func(t *testing.T) {
		source := &fakeSource{buffers: []*frame.Buffer{sourceBuffer(t, alloc, 60)}}
		detector := &fakeDetector{detections: []detect.Detection{det}}
		engine := &fakeEngine{alloc: alloc, err: errors.New("filter unavailable")}
		orch := NewOrchestrator(source, detector, noClassifierPolicy(t), engine, &fakePresenter{}, logger.Nop{})

		orch.RunCycle(context.Background())
		if n := alloc.Active(); n != 0 {
			t.Fatalf("blur failure leaked %d buffers", n)
		}
	})

	t.Run("no frame ready", func(t *testing.T) {
		source := &fakeSource{}
		orch := NewOrchestrator(source, &fakeDetector{}, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, &fakePresenter{}, logger.Nop{})

		orch.RunCycle(context.Background())
		if snap := orch.Metrics().Snapshot(); snap.SkippedNoFrame != 1 {
			t.Fatalf("expected a no-frame skip")
		}
	})
}

// twoToneBuffer fills the top and bottom halves with different values.
func twoToneBuffer(t *testing.T, alloc *frame.Allocator, top, bottom float64) *frame.Buffer {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(top, top, top, 255), 800, 360, gocv.MatTypeCV8UC4)
	half := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(bottom, bottom, bottom, 255), 400, 360, gocv.MatTypeCV8UC4)
	dst := mat.Region(image.Rect(0, 400, 360, 800))
	half.CopyTo(&dst)
	dst.Close()
	half.Close()

	buf, err := alloc.Adopt(mat, time.Now())
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	return buf
}

func TestMovedContentWithEqualMeanIsNotSkipped(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	// Both frames average to the same value; the content has moved from
	// the bottom half to the top half.
	source := &fakeSource{buffers: []*frame.Buffer{
		twoToneBuffer(t, alloc, 40, 200),
		twoToneBuffer(t, alloc, 200, 40),
	}}
	presenter := &fakePresenter{}
	orch := NewOrchestrator(source, &fakeDetector{}, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, presenter, logger.Nop{})

	orch.RunCycle(context.Background())
	orch.RunCycle(context.Background())

	snap := orch.Metrics().Snapshot()
	if snap.SkippedStatic != 0 {
		t.Fatalf("moved content must run a full cycle, got %+v", snap)
	}
	if presenter.clears != 2 {
		t.Fatalf("expected both cycles to reach the presenter, got %d clears", presenter.clears)
	}
	if n := alloc.Active(); n != 0 {
		t.Fatalf("buffer leak: %d active", n)
	}
}

func TestUnchangedContentSkipsAfterCompletedCycle(t *testing.T) {
	alloc := frame.NewAllocator(logger.Nop{})
	defer alloc.Close()

	source := &fakeSource{buffers: []*frame.Buffer{
		sourceBuffer(t, alloc, 70),
		sourceBuffer(t, alloc, 70), // identical content
	}}
	presenter := &fakePresenter{}
	orch := NewOrchestrator(source, &fakeDetector{}, noClassifierPolicy(t), &fakeEngine{alloc: alloc}, presenter, logger.Nop{})

	orch.RunCycle(context.Background())
	orch.RunCycle(context.Background())

	snap := orch.Metrics().Snapshot()
	if snap.SkippedStatic != 1 {
		t.Fatalf("expected the identical frame to be skipped, got %+v", snap)
	}
	if presenter.clears != 1 {
		t.Fatalf("the skipped cycle must not re-clear, got %d clears", presenter.clears)
	}
	if n := alloc.Active(); n != 0 {
		t.Fatalf("buffer leak: %d active", n)
	}
}

package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"time"

	"gocv.io/x/gocv"

	"screenveil/internal/blur"
	"screenveil/internal/capture"
	"screenveil/internal/detect"
	"screenveil/internal/frame"
	"screenveil/internal/geometry"
	"screenveil/internal/logger"
	"screenveil/internal/overlay"
	"screenveil/internal/policy"
)

// Presenter is the orchestrator's view of the overlay renderer.
type Presenter interface {
	Present(pf overlay.ProcessedFrame)
	Clear()
}

// Orchestrator drives one capture-detect-filter-blur-present cycle per
// accepted tick. At most one cycle runs at a time; a tick that arrives
// while one is in flight is dropped, never queued. A failed cycle is a
// skipped tick: no retry, the next tick proceeds normally, which bounds
// recovery to one cadence period.
type Orchestrator struct {
	source    capture.Source
	detector  detect.Detector
	policy    *policy.Policy
	engine    blur.Engine
	presenter Presenter

	state   *State
	metrics *Metrics
	log     logger.Logger
}

func NewOrchestrator(
	source capture.Source,
	detector detect.Detector,
	pol *policy.Policy,
	engine blur.Engine,
	presenter Presenter,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		source:    source,
		detector:  detector,
		policy:    pol,
		engine:    engine,
		presenter: presenter,
		state:     &State{},
		metrics:   &Metrics{},
		log:       log,
	}
}

func (o *Orchestrator) State() *State     { return o.state }
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// RunCycle executes one cycle synchronously. Returns false when the
// tick was dropped because a cycle was already in flight. Safe to call
// from any goroutine; the caller's goroutine is the worker context for
// the duration, including the blocking detector call.
func (o *Orchestrator) RunCycle(ctx context.Context) bool {
	if !o.state.BeginCycle() {
		o.metrics.tickDropped()
		return false
	}
	o.state.setPhase(PhaseAcquiring)

	start := time.Now()
	var owned *frame.Buffer

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Orchestrator", fmt.Errorf("cycle panic: %v", r), map[string]interface{}{
				"phase": o.state.CurrentPhase().String(),
			})
			o.metrics.failed()
			if owned != nil {
				owned.Release()
			}
		}
		o.state.EndCycle()
	}()

	o.state.setPhase(PhaseCapturing)
	buf := o.source.AcquireLatest()
	if buf == nil {
		o.metrics.skippedNoFrame()
		return true
	}
	owned = buf

	sig := motionSignature(buf)
	if sig == o.state.motionSignature() {
		// Content unchanged since the last completed cycle, so the
		// overlay is already correct for this frame.
		buf.Release()
		owned = nil
		o.metrics.skippedStatic()
		return true
	}

	o.state.setPhase(PhaseDetecting)
	detections, err := o.detector.Detect(ctx, buf)
	if err != nil {
		o.log.Warning("Orchestrator", "detection failed, skipping cycle", map[string]interface{}{
			"error": err.Error(),
		})
		o.metrics.failed()
		buf.Release()
		owned = nil
		return true
	}

	o.state.setPhase(PhaseFiltering)
	job := o.policy.Select(ctx, buf, detections)
	if job.Empty() {
		// An explicit clear, not a skip: a stale blurred frame must
		// never stay on screen after its subject moved away.
		o.presenter.Clear()
		buf.Release()
		owned = nil
		o.state.setMotionSignature(sig)
		o.metrics.succeeded(true, time.Since(start))
		return true
	}

	o.state.setPhase(PhaseBlurring)
	processed, err := o.engine.Apply(buf, job)
	buf.Release()
	owned = processed
	if err != nil {
		o.log.Warning("Orchestrator", "blur failed, skipping cycle", map[string]interface{}{
			"error": err.Error(),
		})
		o.metrics.failed()
		owned = nil
		return true
	}

	o.state.setPhase(PhaseMapping)
	regions := o.mapToScreen(job)

	o.state.setPhase(PhasePresenting)
	o.presenter.Present(overlay.ProcessedFrame{Buffer: processed, Regions: regions})
	owned = nil

	o.state.setMotionSignature(sig)
	o.metrics.succeeded(false, time.Since(start))
	return true
}

// mapToScreen pairs each padded job region with its screen-space
// placement. Sizes are read from the source on every cycle so a
// processing resolution change can never act through stale scale
// factors.
func (o *Orchestrator) mapToScreen(job policy.BlurJob) []overlay.Region {
	processing := o.source.ProcessingSize()
	screen := o.source.ScreenSize()

	regions := make([]overlay.Region, 0, len(job.Regions))
	for _, r := range job.Regions {
		padded := geometry.Pad(r, job.Padding, processing)
		if padded.Empty() {
			continue
		}
		regions = append(regions, overlay.Region{
			Processing: padded,
			Screen:     geometry.ToScreenSpace(padded, processing, screen),
		})
	}
	return regions
}

// WaitIdle blocks until no cycle is in flight or the timeout elapses.
// The bound is the detector's worst-case latency; callers proceed
// rather than hang when it is exceeded.
func (o *Orchestrator) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !o.state.Busy() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return !o.state.Busy()
}

// signatureThumbSize is the per-axis resolution of the fingerprint
// thumbnail. Coarse enough to be cheap, fine enough that content moving
// within the frame changes the signature; a global statistic like a
// mean would alias a subject moving across a uniform background.
const signatureThumbSize = 16

// motionSignature is a coarse content fingerprint used to skip cycles
// when the screen has not changed: the frame is downsampled to a small
// thumbnail whose pixels are hashed.
func motionSignature(buf *frame.Buffer) string {
	mat := buf.Mat()
	thumb := gocv.NewMat()
	defer thumb.Close()
	gocv.Resize(mat, &thumb, image.Pt(signatureThumbSize, signatureThumbSize), 0, 0, gocv.InterpolationArea)

	h := fnv.New64a()
	h.Write(thumb.ToBytes())
	return fmt.Sprintf("%dx%d:%016x", buf.Width(), buf.Height(), h.Sum64())
}

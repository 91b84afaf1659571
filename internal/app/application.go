// Package app wires the pipeline together and owns its lifecycle.
// Startup is all-or-nothing: a renderer is never left attached to a
// surface without a content producer behind it.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"

	"screenveil/internal/blur"
	"screenveil/internal/capture"
	"screenveil/internal/config"
	"screenveil/internal/detect"
	"screenveil/internal/events"
	"screenveil/internal/frame"
	"screenveil/internal/logger"
	"screenveil/internal/overlay"
	"screenveil/internal/pipeline"
	"screenveil/internal/policy"
	"screenveil/internal/shutdown"
)

// inFlightCycleTimeout bounds the shutdown wait for a cycle blocked in
// the detector.
const inFlightCycleTimeout = 10 * time.Second

const metricsInterval = 30 * time.Second

type Application struct {
	cfg config.Config
	log logger.Logger

	bus      *events.Bus
	alloc    *frame.Allocator
	source   capture.Source
	detector detect.Detector
	labeler  detect.Classifier
	policy   *policy.Policy
	engine   blur.Engine
	surface  *overlay.FyneSurface
	renderer *overlay.Renderer

	orchestrator *pipeline.Orchestrator
	rate         *pipeline.RateController
	scheduler    *pipeline.Scheduler

	cancel       context.CancelFunc
	running      bool
	shutdownOnce sync.Once
}

// New constructs the full pipeline. Resource initialization failures
// (detector or classifier model missing) are fatal here; nothing has
// started yet, so there is nothing to unwind.
func New(cfg config.Config, fyneApp fyne.App, log logger.Logger) (*Application, error) {
	frame.SetDebugChecks(cfg.DebugMode)

	bus := events.NewBus(64)
	alloc := frame.NewAllocator(log)

	detector, err := detect.NewCascadeDetector(cfg.CascadeModelPath, log)
	if err != nil {
		bus.Shutdown()
		alloc.Close()
		return nil, fmt.Errorf("initialize detector: %w", err)
	}

	// The classifier is optional: running without one is a valid,
	// permanently degraded mode in which everything above the
	// confidence threshold is obscured.
	var labeler detect.Classifier
	if cfg.ClassifierPath != "" {
		l, err := detect.NewCascadeLabeler(cfg.ClassifierPath, cfg.TargetLabel, log)
		if err != nil {
			detector.Close()
			bus.Shutdown()
			alloc.Close()
			return nil, fmt.Errorf("initialize classifier: %w", err)
		}
		labeler = l
	}

	pol, err := policy.New(labeler, cfg.TargetLabel, cfg.ConfidenceThreshold, log)
	if err != nil {
		if labeler != nil {
			labeler.Close()
		}
		detector.Close()
		bus.Shutdown()
		alloc.Close()
		return nil, fmt.Errorf("initialize filter policy: %w", err)
	}

	engine := blur.NewEngine(cfg.BlurStrength, cfg.PreferHardwareAccel, alloc, log)
	source := capture.NewScreenSource(cfg.ProcessingWidth(), alloc, log)

	surface := overlay.NewFyneSurface(fyneApp, log)
	renderer := overlay.NewRenderer(surface, bus, log)
	surface.SetPaintSource(renderer.BeginPaint)

	orchestrator := pipeline.NewOrchestrator(source, detector, pol, engine, renderer, log)
	rate := pipeline.NewRateController(
		cfg.BaseCadenceHz, cfg.BoostCadenceHz, cfg.BoostWindow, cfg.AdaptiveCadence, nil, log)
	scheduler := pipeline.NewScheduler(rate, orchestrator, log)

	a := &Application{
		cfg:          cfg,
		log:          log,
		bus:          bus,
		alloc:        alloc,
		source:       source,
		detector:     detector,
		labeler:      labeler,
		policy:       pol,
		engine:       engine,
		surface:      surface,
		renderer:     renderer,
		orchestrator: orchestrator,
		rate:         rate,
		scheduler:    scheduler,
	}
	a.wireSignals()

	log.Info("Application", "pipeline constructed", map[string]interface{}{
		"target_label":          cfg.TargetLabel,
		"blur_engine":           engine.Name(),
		"processing_width":      cfg.ProcessingWidth(),
		"adaptive_cadence":      cfg.AdaptiveCadence,
		"classifier_configured": labeler != nil,
	})
	return a, nil
}

// wireSignals subscribes the pipeline to the external event streams:
// scroll boosts capture cadence, a window change invalidates per-subject
// classification memoization (subject identity does not survive an app
// switch).
func (a *Application) wireSignals() {
	a.bus.Subscribe(events.TypeScroll, events.NewHandlerFunc(func(events.Event) {
		a.rate.OnScrollSignal()
	}))
	a.bus.Subscribe(events.TypeWindowChanged, events.NewHandlerFunc(func(events.Event) {
		a.policy.InvalidateLabels()
	}))
}

// NotifyScroll feeds the scroll/interaction event stream.
func (a *Application) NotifyScroll() {
	a.bus.Publish(events.Event{Type: events.TypeScroll})
}

// NotifyWindowChange feeds the app/window-change event stream.
func (a *Application) NotifyWindowChange() {
	a.bus.Publish(events.Event{Type: events.TypeWindowChanged})
}

// Start brings the pipeline up. On any partial failure everything
// already started is unwound before returning.
func (a *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.source.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start capture source: %w", err)
	}

	if err := a.surface.Attach(); err != nil {
		a.source.Stop()
		cancel()
		return fmt.Errorf("attach overlay surface: %w", err)
	}

	a.scheduler.Start(runCtx)
	a.running = true

	go a.monitor(runCtx)

	a.log.Info("Application", "pipeline running", nil)
	return nil
}

// RunOnce executes a single cycle synchronously. Used by the --once
// mode for smoke-testing a configuration.
func (a *Application) RunOnce(ctx context.Context) {
	// The capture grab is asynchronous; give the first frame a moment.
	for i := 0; i < 20 && !a.orchestratorRanCycle(ctx); i++ {
		time.Sleep(50 * time.Millisecond)
	}
}

func (a *Application) orchestratorRanCycle(ctx context.Context) bool {
	before := a.orchestrator.Metrics().Snapshot()
	a.orchestrator.RunCycle(ctx)
	after := a.orchestrator.Metrics().Snapshot()
	return after.Succeeded+after.Failed > before.Succeeded+before.Failed
}

func (a *Application) monitor(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.orchestrator.Metrics().Snapshot()
			a.log.Debug("Application", "cycle metrics", map[string]interface{}{
				"succeeded":        snap.Succeeded,
				"cleared":          snap.Cleared,
				"failed":           snap.Failed,
				"ticks_dropped":    snap.TicksDropped,
				"skipped_no_frame": snap.SkippedNoFrame,
				"skipped_static":   snap.SkippedStatic,
				"avg_cycle_ms":     snap.AvgCycle.Milliseconds(),
				"buffers_active":   a.alloc.Active(),
				"cadence_hz":       a.rate.CurrentHz(),
			})
		}
	}
}

// Shutdown tears the pipeline down: stop issuing ticks, wait for any
// in-flight cycle (bounded), then release capture, detector, and
// renderer, in that order. Idempotent.
func (a *Application) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.running {
			a.running = false
			a.scheduler.Stop(inFlightCycleTimeout)
		}
		a.releaseResources()
		a.log.Info("Application", "pipeline shut down", nil)
	})
}

func (a *Application) releaseResources() {
	if err := a.source.Stop(); err != nil {
		a.log.Error("Application", err, map[string]interface{}{"stage": "capture stop"})
	}
	if err := a.detector.Close(); err != nil {
		a.log.Error("Application", err, map[string]interface{}{"stage": "detector close"})
	}
	if a.labeler != nil {
		if err := a.labeler.Close(); err != nil {
			a.log.Error("Application", err, map[string]interface{}{"stage": "classifier close"})
		}
	}
	if err := a.renderer.Shutdown(); err != nil {
		a.log.Error("Application", err, map[string]interface{}{"stage": "renderer shutdown"})
	}
	a.bus.Shutdown()
	a.alloc.Close()
}

var _ shutdown.Shutdownable = (*Application)(nil)

package pipeline

import (
	"context"
	"sync"
	"time"

	"screenveil/internal/logger"
)

// tickGranularity is how often the scheduler consults the rate
// controller. Finer than any supported cadence so boost changes take
// effect within one granule.
const tickGranularity = 100 * time.Millisecond

// Scheduler owns the periodic loop driving the rate controller and
// orchestrator. Each accepted tick runs its cycle on a fresh goroutine:
// the detector call blocks that goroutine, never the scheduler, and the
// orchestrator's single-flight gate drops ticks that land while a cycle
// is still running.
type Scheduler struct {
	rate *RateController
	orch *Orchestrator
	log  logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewScheduler(rate *RateController, orch *Orchestrator, log logger.Logger) *Scheduler {
	return &Scheduler{
		rate: rate,
		orch: orch,
		log:  log,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.loop(loopCtx)
	s.log.Info("Scheduler", "scheduler started", nil)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickGranularity)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.rate.Tick() {
				go s.orch.RunCycle(ctx)
			}
		}
	}
}

// Stop ends tick issuance, then waits up to cycleTimeout for an
// in-flight cycle to reach its cleanup block. Proceeds with a warning
// rather than hanging when the detector exceeds the bound.
func (s *Scheduler) Stop(cycleTimeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	s.cancel()
	<-s.done
	s.started = false

	if !s.orch.WaitIdle(cycleTimeout) {
		s.log.Warning("Scheduler", "in-flight cycle did not finish before timeout", map[string]interface{}{
			"timeout": cycleTimeout.String(),
		})
		return
	}
	s.log.Info("Scheduler", "scheduler stopped", nil)
}

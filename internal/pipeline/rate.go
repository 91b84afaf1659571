package pipeline

import (
	"sync"
	"time"

	"screenveil/internal/logger"
)

// Clock abstracts time for the rate controller so boost decay is
// testable without sleeping.
type Clock func() time.Time

// RateController decides whether a scheduler tick should run a cycle.
// Cadence sits at a low base rate and is boosted while the user is
// interacting; each scroll signal refreshes a fixed expiry window, and
// the first tick observing the expired window decays back to base.
// Holds no buffers and cannot fail: pure state plus clock reads.
type RateController struct {
	mu sync.Mutex

	baseHz      float64
	boostHz     float64
	boostWindow time.Duration
	adaptive    bool
	now         Clock
	log         logger.Logger

	currentHz   float64
	boostActive bool
	boostExpiry time.Time
	lastRun     time.Time
}

func NewRateController(baseHz, boostHz float64, boostWindow time.Duration, adaptive bool, now Clock, log logger.Logger) *RateController {
	if now == nil {
		now = time.Now
	}
	return &RateController{
		baseHz:      baseHz,
		boostHz:     boostHz,
		boostWindow: boostWindow,
		adaptive:    adaptive,
		now:         now,
		log:         log,
		currentHz:   baseHz,
	}
}

// Tick reports whether a cycle is due now. Also the point where an
// expired boost decays: decay happens when observed, not on a timer of
// its own.
func (rc *RateController) Tick() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	if rc.boostActive && now.After(rc.boostExpiry) {
		rc.boostActive = false
		rc.currentHz = rc.baseHz
		rc.log.Debug("RateController", "boost expired, cadence decayed", map[string]interface{}{
			"cadence_hz": rc.currentHz,
		})
	}

	interval := time.Duration(float64(time.Second) / rc.currentHz)
	if now.Sub(rc.lastRun) < interval {
		return false
	}
	rc.lastRun = now
	return true
}

// OnScrollSignal boosts cadence and pushes the expiry out by the boost
// window. No-op when adaptive cadence is disabled.
func (rc *RateController) OnScrollSignal() {
	if !rc.adaptive {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.boostExpiry = rc.now().Add(rc.boostWindow)
	if !rc.boostActive {
		rc.boostActive = true
		rc.currentHz = rc.boostHz
		rc.log.Debug("RateController", "cadence boosted", map[string]interface{}{
			"cadence_hz": rc.currentHz,
		})
	}
}

// CurrentHz is for diagnostics and tests.
func (rc *RateController) CurrentHz() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.currentHz
}

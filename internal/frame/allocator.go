package frame

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"screenveil/internal/logger"
)

const maxPooledPerShape = 4

type poolKey struct {
	rows    int
	cols    int
	matType gocv.MatType
}

// Allocator hands out pooled Buffers. The pipeline allocates in only a
// handful of shapes (capture size, processing size), so a small bounded
// pool per shape removes the steady-state native allocation churn.
type Allocator struct {
	mu     sync.Mutex
	pools  map[poolKey][]gocv.Mat
	closed bool
	active int64
	hits   int64
	misses int64
	log    logger.Logger
}

func NewAllocator(log logger.Logger) *Allocator {
	return &Allocator{
		pools: make(map[poolKey][]gocv.Mat),
		log:   log,
	}
}

// Get returns a Buffer of the requested shape with one reference owned
// by the caller. Pixel contents are unspecified; callers overwrite.
func (a *Allocator) Get(rows, cols int, matType gocv.MatType, capturedAt time.Time) (*Buffer, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid buffer dimensions %dx%d", cols, rows)
	}

	a.mu.Lock()
	key := poolKey{rows: rows, cols: cols, matType: matType}
	var mat gocv.Mat
	pooled := false
	if mats := a.pools[key]; len(mats) > 0 {
		mat = mats[len(mats)-1]
		a.pools[key] = mats[:len(mats)-1]
		pooled = true
		a.hits++
	} else {
		a.misses++
	}
	a.active++
	a.mu.Unlock()

	if !pooled {
		mat = gocv.NewMatWithSize(rows, cols, matType)
		if mat.Empty() {
			a.mu.Lock()
			a.active--
			a.mu.Unlock()
			return nil, fmt.Errorf("failed to allocate %dx%d mat", cols, rows)
		}
	}

	return newBuffer(mat, capturedAt, a), nil
}

// Adopt takes ownership of an externally created mat, returning it to
// the pool on final release.
func (a *Allocator) Adopt(mat gocv.Mat, capturedAt time.Time) (*Buffer, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("cannot adopt empty mat")
	}
	a.mu.Lock()
	a.active++
	a.mu.Unlock()
	return newBuffer(mat, capturedAt, a), nil
}

func (a *Allocator) recycle(b *Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active--
	key := poolKey{rows: b.height, cols: b.width, matType: b.matType}
	if !a.closed && len(a.pools[key]) < maxPooledPerShape {
		a.pools[key] = append(a.pools[key], b.mat)
		return
	}
	b.mat.Close()
}

func (a *Allocator) reportViolation(id uint64, what string) {
	a.log.Warning("FrameAllocator", "buffer lifecycle violation", map[string]interface{}{
		"buffer_id": id,
		"violation": what,
	})
}

// Active returns the number of buffers currently held by the pipeline.
// Used by shutdown diagnostics and leak tests.
func (a *Allocator) Active() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Close releases all pooled mats. Outstanding buffers stay valid and
// close their mats directly on final release.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	freed := 0
	for key, mats := range a.pools {
		for _, m := range mats {
			m.Close()
			freed++
		}
		delete(a.pools, key)
	}
	a.log.Debug("FrameAllocator", "pool drained", map[string]interface{}{
		"freed":           freed,
		"still_active":    a.active,
		"pool_hit_count":  a.hits,
		"pool_miss_count": a.misses,
	})
}

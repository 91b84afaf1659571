package frame

import (
	"fmt"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Buffer is a reference-counted pixel buffer backed by a native Mat.
// A Buffer is created with one reference owned by the caller; ownership
// transfers are explicit via Retain/Release. The Mat is returned to the
// owning Allocator (or closed) when the last reference is released, so
// the Mat must never be touched after Release.
//
// Publish-then-freeze: once a Buffer has been handed to another
// component its pixels are immutable. Producers that need to mutate
// must work on their own Buffer and release the input.
type Buffer struct {
	mat        gocv.Mat
	width      int
	height     int
	matType    gocv.MatType
	capturedAt time.Time

	refs  atomic.Int32
	id    uint64
	alloc *Allocator
}

var nextBufferID atomic.Uint64

func newBuffer(mat gocv.Mat, capturedAt time.Time, alloc *Allocator) *Buffer {
	b := &Buffer{
		mat:        mat,
		width:      mat.Cols(),
		height:     mat.Rows(),
		matType:    mat.Type(),
		capturedAt: capturedAt,
		alloc:      alloc,
		id:         nextBufferID.Add(1),
	}
	b.refs.Store(1)
	return b
}

// Wrap takes ownership of mat and returns a Buffer with one reference.
// The mat is closed (not pooled) on final release.
func Wrap(mat gocv.Mat, capturedAt time.Time) (*Buffer, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("cannot wrap empty mat")
	}
	return newBuffer(mat, capturedAt, nil), nil
}

func (b *Buffer) ID() uint64            { return b.id }
func (b *Buffer) Width() int            { return b.width }
func (b *Buffer) Height() int           { return b.height }
func (b *Buffer) MatType() gocv.MatType { return b.matType }
func (b *Buffer) CapturedAt() time.Time { return b.capturedAt }

// Mat exposes the underlying native buffer. Valid only while the caller
// holds a reference.
func (b *Buffer) Mat() gocv.Mat { return b.mat }

// Alive reports whether at least one reference is still held. Intended
// for assertions and diagnostics, not for synchronization.
func (b *Buffer) Alive() bool { return b.refs.Load() > 0 }

// Retain adds a reference. Returns b for call chaining.
func (b *Buffer) Retain() *Buffer {
	if b.refs.Add(1) <= 1 {
		// Retain raced with the final release; the mat may already be gone.
		b.violation("retain after final release")
	}
	return b
}

// Release drops one reference. The final release returns the mat to the
// allocator pool, or closes it for unpooled buffers. Releasing a dead
// buffer is a lifecycle defect: it halts in debug mode and is ignored
// (with a diagnostic) otherwise, so a double-release can never turn
// into a double-free of native memory.
func (b *Buffer) Release() {
	for {
		n := b.refs.Load()
		if n <= 0 {
			b.violation("release of dead buffer")
			return
		}
		if !b.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n == 1 {
			b.dispose()
		}
		return
	}
}

func (b *Buffer) dispose() {
	if b.alloc != nil {
		b.alloc.recycle(b)
		return
	}
	b.mat.Close()
}

// debugChecks makes lifecycle violations halt loudly instead of
// self-healing. Enabled from config in debug builds.
var debugChecks atomic.Bool

// SetDebugChecks toggles halt-on-violation behavior process-wide.
func SetDebugChecks(on bool) { debugChecks.Store(on) }

// DebugChecksEnabled reports the current halt-on-violation setting so
// other lifecycle invariants (overlay buffer count) follow the same
// policy.
func DebugChecksEnabled() bool { return debugChecks.Load() }

func (b *Buffer) violation(what string) {
	if b.alloc != nil {
		b.alloc.reportViolation(b.id, what)
	}
	if debugChecks.Load() {
		panic(fmt.Sprintf("frame buffer %d: %s", b.id, what))
	}
}

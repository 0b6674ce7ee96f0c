package engine

import (
	"sync"
	"time"
)

const (
	DefaultBottomThreshold = 10
	DefaultSettleDelay     = 10 * time.Millisecond
)

// Geometry is the scroll state of a view, in rows (or pixels)
type Geometry struct {
	Offset         int // First visible row
	ViewportHeight int
	ContentHeight  int
}

// IsAtBottom reports whether the view shows the end of the content, within
// threshold rows to absorb layout rounding
func IsAtBottom(g Geometry, threshold int) bool {
	return g.Offset+g.ViewportHeight >= g.ContentHeight-threshold
}

// Viewport is the view the anchor keeps pinned
type Viewport interface {
	ScrollToBottom()
}

// ScrollAnchor decides whether new messages follow the bottom of the view
// or leave the reader's position alone
type ScrollAnchor struct {
	mu        sync.Mutex
	viewport  Viewport
	clock     Clock
	threshold int
	settle    time.Duration
	atBottom  bool
	pending   Timer
}

// NewScrollAnchor creates an anchor that starts pinned to the bottom
func NewScrollAnchor(viewport Viewport, clock Clock, threshold int, settle time.Duration) *ScrollAnchor {
	if clock == nil {
		clock = SystemClock
	}
	return &ScrollAnchor{
		viewport:  viewport,
		clock:     clock,
		threshold: threshold,
		settle:    settle,
		atBottom:  true,
	}
}

// OnScroll recomputes the bottom flag from the view's geometry. Call it on
// every scroll event.
func (a *ScrollAnchor) OnScroll(g Geometry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.atBottom = IsAtBottom(g, a.threshold)
	return a.atBottom
}

// AtBottom returns the current bottom flag
func (a *ScrollAnchor) AtBottom() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.atBottom
}

// ForceFollow pins the view to the bottom regardless of where the user
// scrolled to. Used when the user sends a message.
func (a *ScrollAnchor) ForceFollow() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.atBottom = true
}

// Appended is called after the store grows. When the view was at the bottom
// it scrolls to the new bottom after the settle delay, so the view can size
// the new content first. Otherwise the position is left untouched.
func (a *ScrollAnchor) Appended() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.atBottom || a.pending != nil {
		return
	}
	a.pending = a.clock.AfterFunc(a.settle, a.settled)
}

func (a *ScrollAnchor) settled() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()

	a.viewport.ScrollToBottom()
}

// Stop cancels a pending settle
func (a *ScrollAnchor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
}

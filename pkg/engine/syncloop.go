package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the sync period when none is configured
const DefaultPollInterval = 2500 * time.Millisecond

// SyncLoop polls the remote session at a fixed rate. The timer is re-armed
// at the start of every tick, so the cadence does not drift with fetch
// latency; a tick that fires while the previous fetch is still running is
// skipped instead of overlapping it.
type SyncLoop struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	fetch    func(ctx context.Context) error
	onError  func(err error)
	metrics  *Metrics
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	timer    Timer
	epoch    uint64 // Bumped on every arm/disarm; stale timer callbacks compare against it
	active   bool
	stopped  bool
	inFlight bool
}

// NewSyncLoop creates a stopped loop. fetch runs once per tick; a non-nil
// error is passed to onError and the loop keeps ticking.
func NewSyncLoop(clock Clock, interval time.Duration, fetch func(ctx context.Context) error, onError func(err error), metrics *Metrics, logger zerolog.Logger) *SyncLoop {
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if onError == nil {
		onError = func(error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncLoop{
		clock:    clock,
		interval: interval,
		fetch:    fetch,
		onError:  onError,
		metrics:  metrics,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start arms the timer. Idempotent.
func (l *SyncLoop) Start() {
	l.Resume()
}

// Resume arms the timer if it is not armed. It never creates a second timer.
func (l *SyncLoop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active || l.stopped {
		return
	}
	l.active = true
	l.epoch++
	l.arm(l.epoch)
}

// Suspend cancels the pending tick. Idempotent. A fetch already running
// is not interrupted.
func (l *SyncLoop) Suspend() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disarm()
}

// Stop suspends the loop for good and cancels the context of any running
// fetch. Resume has no effect afterwards.
func (l *SyncLoop) Stop() {
	l.mu.Lock()
	l.disarm()
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
}

// Active reports whether a tick is scheduled
func (l *SyncLoop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// FetchNow runs one fetch immediately on the caller's goroutine, outside
// the tick schedule
func (l *SyncLoop) FetchNow() error {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return nil
	}
	return l.run()
}

// arm schedules the next tick. Caller holds l.mu.
func (l *SyncLoop) arm(epoch uint64) {
	l.timer = l.clock.AfterFunc(l.interval, func() { l.tick(epoch) })
}

// disarm cancels the pending tick. Caller holds l.mu.
func (l *SyncLoop) disarm() {
	if !l.active {
		return
	}
	l.active = false
	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *SyncLoop) tick(epoch uint64) {
	l.mu.Lock()
	if !l.active || epoch != l.epoch {
		// Suspended, or superseded by a newer timer, after this one fired
		l.mu.Unlock()
		return
	}
	l.arm(epoch)
	if l.inFlight {
		l.mu.Unlock()
		l.metrics.recordTick(true)
		l.logger.Debug().Msg("previous fetch still running, skipping tick")
		return
	}
	l.inFlight = true
	l.mu.Unlock()

	l.metrics.recordTick(false)
	l.run()

	l.mu.Lock()
	l.inFlight = false
	l.mu.Unlock()
}

func (l *SyncLoop) run() error {
	err := l.fetch(l.ctx)
	if err != nil && l.ctx.Err() == nil {
		l.logger.Warn().Err(err).Msg("sync tick failed")
		l.onError(err)
	}
	return err
}

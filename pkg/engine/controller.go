package engine

import (
	"context"
	"sync"
	"time"

	"github.com/aeolun/tower/pkg/client"
	"github.com/aeolun/tower/pkg/protocol"
	"github.com/rs/zerolog"
)

// ConnectParams are the user's connect inputs. Credentials may be nil.
type ConnectParams struct {
	Address     string
	Credentials *client.Credentials
	UseTLS      bool
}

// Event is delivered to Options.OnEvent
type Event interface {
	isEvent()
}

// StateChanged is emitted on every state transition
type StateChanged struct {
	From, To ConnState
}

// MessagesAppended is emitted after a non-empty batch was stored
type MessagesAppended struct {
	Batch []protocol.Envelope
	Total int
}

func (StateChanged) isEvent()     {}
func (MessagesAppended) isEvent() {}

type Options struct {
	PollInterval time.Duration // Defaults to DefaultPollInterval
	Clock        Clock         // Defaults to SystemClock
	Notifier     Notifier
	Anchor       *ScrollAnchor // Optional; told about appends and sends
	Metrics      *Metrics      // Optional
	Logger       zerolog.Logger

	// OnEvent is called outside the controller's lock, from whichever
	// goroutine caused the event (a timer goroutine for sync ticks)
	OnEvent func(Event)
}

// connection is everything that exists only while Connected
type connection struct {
	generation uint64
	params     ConnectParams
	addr       client.Address
	session    client.Session
	store      *Store
	loop       *SyncLoop
}

// Controller owns the connection state machine, the session, the sync loop
// and the send coordinator
type Controller struct {
	opener client.Opener
	opts   Options
	logger zerolog.Logger
	sender *SendCoordinator

	// fetchMu serializes fetch+append so batches land in the order the
	// session produced them
	fetchMu sync.Mutex

	mu         sync.Mutex
	state      ConnState
	generation uint64 // Bumped on every connect and disconnect
	conn       *connection
	store      *Store // Most recent store; kept after disconnect for display

	// Set while Connecting: cancels Open and is closed when Connect returns
	cancelOpen context.CancelFunc
	opening    chan struct{}
	closed     bool // Set by Shutdown; no further connects
}

func NewController(opener client.Opener, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	c := &Controller{
		opener: opener,
		opts:   opts,
		logger: opts.Logger,
		store:  NewStore(),
	}
	c.sender = newSendCoordinator(c, opts.Notifier, opts.Metrics, opts.Logger)
	opts.Metrics.recordState(Disconnected)
	return c
}

// Connect validates the address, opens a session and starts syncing. An
// address that is not rac:// or wrac:// fails with ErrInvalidAddress and no
// network call. A failed open returns *ConnectionError and notifies with a
// Retry action that reconnects with the same params. A Shutdown while the
// open runs cancels it; Connect then closes any session it got and returns
// ErrShutdown.
func (c *Controller) Connect(ctx context.Context, params ConnectParams) error {
	addr, err := client.ParseAddress(params.Address)
	if err != nil {
		c.logger.Debug().Err(err).Str("address", params.Address).Msg("rejected address")
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShutdown
	}
	if err := checkTransition(c.state, Connecting); err != nil {
		c.mu.Unlock()
		return err
	}
	c.generation++
	gen := c.generation
	openCtx, cancel := context.WithCancel(ctx)
	opening := make(chan struct{})
	c.cancelOpen = cancel
	c.opening = opening
	from := c.setState(Connecting)
	c.mu.Unlock()
	defer close(opening)
	defer cancel()
	c.emit(StateChanged{From: from, To: Connecting})

	session, err := c.opener.Open(openCtx, addr, params.Credentials, params.UseTLS)

	if err != nil {
		c.mu.Lock()
		c.cancelOpen, c.opening = nil, nil
		closed := c.closed
		c.setState(Disconnected)
		c.mu.Unlock()
		c.emit(StateChanged{From: Connecting, To: Disconnected})
		if closed {
			c.logger.Debug().Err(err).Str("address", addr.String()).Msg("connect abandoned by shutdown")
			return ErrShutdown
		}

		c.opts.Metrics.recordConnect(err)
		connErr := &ConnectionError{Params: params, Err: err}
		c.logger.Warn().Err(err).Str("address", addr.String()).Msg("connect failed")
		c.opts.Notifier.Notify(Notification{
			Title:       "Failed to connect",
			Description: err.Error(),
			Err:         connErr,
			Retry: func() error {
				return c.Connect(context.Background(), params)
			},
		})
		return connErr
	}

	conn := &connection{
		generation: gen,
		params:     params,
		addr:       addr,
		session:    session,
		store:      NewStore(),
	}
	conn.loop = NewSyncLoop(
		c.opts.Clock,
		c.opts.PollInterval,
		func(ctx context.Context) error { return c.fetch(ctx, conn) },
		c.fetchFailed,
		c.opts.Metrics,
		c.logger,
	)

	c.mu.Lock()
	c.cancelOpen, c.opening = nil, nil
	if c.closed {
		c.setState(Disconnected)
		c.mu.Unlock()
		if err := session.Close(); err != nil {
			c.logger.Warn().Err(err).Str("address", addr.String()).Msg("close failed")
		}
		c.emit(StateChanged{From: Connecting, To: Disconnected})
		c.logger.Debug().Str("address", addr.String()).Msg("connect abandoned by shutdown")
		return ErrShutdown
	}
	c.conn = conn
	c.store = conn.store
	c.setState(Connected)
	c.mu.Unlock()
	c.opts.Metrics.recordConnect(nil)
	c.emit(StateChanged{From: Connecting, To: Connected})

	c.logger.Info().Str("address", addr.String()).Dur("interval", c.opts.PollInterval).Msg("connected")
	conn.loop.Start()
	return nil
}

// Disconnect stops syncing and closes the session. It is refused with
// ErrSendInFlight while a send is running and with ErrNotConfirmed unless
// confirmed; neither refusal changes anything. A close failure is logged
// and the controller still ends Disconnected.
func (c *Controller) Disconnect(confirmed bool) error {
	c.mu.Lock()
	if c.state != Connected {
		err := checkTransition(c.state, Disconnecting)
		c.mu.Unlock()
		return err
	}
	if c.sender.Busy() {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	if !confirmed {
		c.mu.Unlock()
		return ErrNotConfirmed
	}
	conn := c.teardownLocked()
	c.mu.Unlock()

	c.finishTeardown(conn)
	return nil
}

// Shutdown disconnects without confirmation and regardless of an in-flight
// send. Used when the application exits. A connect that is still opening
// is cancelled and Shutdown waits for it to give up. Later connects fail
// with ErrShutdown.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closed = true
	switch c.state {
	case Connecting:
		cancel, opening := c.cancelOpen, c.opening
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if opening != nil {
			<-opening
		}
	case Connected:
		conn := c.teardownLocked()
		c.mu.Unlock()
		c.finishTeardown(conn)
	default:
		c.mu.Unlock()
	}
}

// teardownLocked moves to Disconnecting and detaches the connection.
// Caller holds c.mu and state is Connected.
func (c *Controller) teardownLocked() *connection {
	conn := c.conn
	c.conn = nil
	c.generation++
	c.setState(Disconnecting)
	return conn
}

func (c *Controller) finishTeardown(conn *connection) {
	c.emit(StateChanged{From: Connected, To: Disconnecting})

	conn.loop.Stop()
	if c.opts.Anchor != nil {
		c.opts.Anchor.Stop()
	}
	if err := conn.session.Close(); err != nil {
		c.logger.Warn().Err(err).Str("address", conn.addr.String()).Msg("close failed")
	}

	c.mu.Lock()
	c.setState(Disconnected)
	c.mu.Unlock()
	c.emit(StateChanged{From: Disconnecting, To: Disconnected})
	c.logger.Info().Str("address", conn.addr.String()).Msg("disconnected")
}

// Send forwards to the send coordinator
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.sender.Send(ctx, text)
}

// Sender returns the send coordinator
func (c *Controller) Sender() *SendCoordinator {
	return c.sender
}

// State returns the current connection state
func (c *Controller) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Store returns the store of the current or most recent connection
func (c *Controller) Store() *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Address returns the address of the current connection, if any
func (c *Controller) Address() (client.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return client.Address{}, false
	}
	return c.conn.addr, true
}

// Traffic returns bytes sent and received by the current session when the
// session counts them
func (c *Controller) Traffic() (sent, received uint64, ok bool) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, 0, false
	}
	counter, ok := conn.session.(client.TrafficCounter)
	if !ok {
		return 0, 0, false
	}
	return counter.BytesSent(), counter.BytesReceived(), true
}

// current returns the live connection while Connected
func (c *Controller) current() (*connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected || c.conn == nil {
		return nil, false
	}
	return c.conn, true
}

// isCurrent reports whether gen is still the live connection
func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected && c.generation == gen
}

// fetch runs one fetch for conn and appends the result. Results that
// arrive after conn stopped being the live connection are discarded.
func (c *Controller) fetch(ctx context.Context, conn *connection) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if !c.isCurrent(conn.generation) {
		return nil
	}

	start := time.Now()
	batch, err := conn.session.FetchMessages(ctx)
	c.opts.Metrics.recordFetch(time.Since(start), err)
	if err != nil {
		if !c.isCurrent(conn.generation) {
			return nil
		}
		return &FetchError{Err: err}
	}
	if len(batch) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.state != Connected || c.generation != conn.generation {
		c.mu.Unlock()
		c.logger.Debug().Int("count", len(batch)).Msg("discarding batch from stale connection")
		return nil
	}
	total := conn.store.Append(batch...)
	c.mu.Unlock()

	malformed := 0
	for _, env := range batch {
		if _, ok := env.(protocol.Malformed); ok {
			malformed++
		}
	}
	c.opts.Metrics.recordAppend(len(batch), malformed)

	if c.opts.Anchor != nil {
		c.opts.Anchor.Appended()
	}
	c.emit(MessagesAppended{Batch: batch, Total: total})
	return nil
}

func (c *Controller) fetchFailed(err error) {
	c.opts.Notifier.Notify(Notification{
		Title:       "Failed to fetch messages",
		Description: err.Error(),
		Err:         err,
	})
}

// setState changes state and returns the previous one. Caller holds c.mu.
func (c *Controller) setState(to ConnState) ConnState {
	from := c.state
	c.state = to
	c.opts.Metrics.recordState(to)
	c.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("state")
	return from
}

func (c *Controller) emit(ev Event) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

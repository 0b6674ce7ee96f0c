package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/aeolun/tower/pkg/client"
	"github.com/aeolun/tower/pkg/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testInterval = 2500 * time.Millisecond

var epoch = time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingNotifier) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []Event
	also   func(Event) // Optional; set before connecting
}

func (r *recordingEvents) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	also := r.also
	r.mu.Unlock()

	if also != nil {
		also(ev)
	}
}

func (r *recordingEvents) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingEvents) states() []ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ConnState
	for _, ev := range r.events {
		if sc, ok := ev.(StateChanged); ok {
			out = append(out, sc.To)
		}
	}
	return out
}

type testHarness struct {
	ctrl     *Controller
	opener   *client.MockOpener
	session  *client.MockSession
	clock    *ManualClock
	notifier *recordingNotifier
	events   *recordingEvents
	metrics  *Metrics
}

func newHarness(t *testing.T, anchor *ScrollAnchor) *testHarness {
	t.Helper()
	session := client.NewMockSession()
	h := &testHarness{
		opener:   client.NewMockOpener(session),
		session:  session,
		clock:    NewManualClock(epoch),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		metrics:  NewMetrics(nil),
	}
	h.ctrl = NewController(h.opener, Options{
		PollInterval: testInterval,
		Clock:        h.clock,
		Notifier:     h.notifier,
		Anchor:       anchor,
		Metrics:      h.metrics,
		Logger:       zerolog.Nop(),
		OnEvent:      h.events.record,
	})
	return h
}

// connected returns a harness already in the Connected state
func connected(t *testing.T, anchor *ScrollAnchor) *testHarness {
	t.Helper()
	h := newHarness(t, anchor)
	require.NoError(t, h.ctrl.Connect(t.Context(), ConnectParams{Address: "rac://host:1234"}))
	require.Equal(t, Connected, h.ctrl.State())
	return h
}

// tick advances the clock by one poll interval
func (h *testHarness) tick() {
	h.clock.Advance(testInterval)
}

func line(text string) protocol.Envelope {
	return protocol.ParseLine(text)
}

func raws(envs []protocol.Envelope) []string {
	out := make([]string, len(envs))
	for i, env := range envs {
		out[i] = env.Raw()
	}
	return out
}

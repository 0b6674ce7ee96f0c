package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSendWhitespaceIsNoop(t *testing.T) {
	h := connected(t, nil)

	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringOfN(rapid.SampledFrom([]rune{' ', '\t', '\n', '\r'}), 0, 16, -1).Draw(rt, "text")

		require.NoError(rt, h.ctrl.Send(context.Background(), text))
		require.False(rt, h.ctrl.Sender().Busy())
	})

	assert.Empty(t, h.session.Sent())
	assert.Equal(t, "", h.ctrl.Sender().Draft())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Sends))
}

func TestSendWhitespaceWhileDisconnected(t *testing.T) {
	h := newHarness(t, nil)

	// Returns before the connection is looked at
	assert.NoError(t, h.ctrl.Send(t.Context(), "   "))
	assert.NoError(t, h.ctrl.Send(t.Context(), ""))
	assert.ErrorIs(t, h.ctrl.Send(t.Context(), "hi"), ErrNotConnected)
	assert.False(t, h.ctrl.Sender().Busy())
}

func TestSendSuccess(t *testing.T) {
	h := connected(t, nil)
	h.session.QueueBatch(line("▲<anonymous> hello"))

	require.NoError(t, h.ctrl.Send(t.Context(), "  hello \n"))

	assert.Equal(t, []string{"hello"}, h.session.Sent())
	assert.Equal(t, "", h.ctrl.Sender().Draft())
	assert.False(t, h.ctrl.Sender().Busy())

	assert.Equal(t, 1, h.session.FetchCount(), "fetches right after sending")
	assert.Equal(t, 1, h.ctrl.Store().Len())

	assert.Equal(t, 1, h.clock.Pending(), "sync loop resumed")
	h.tick()
	assert.Equal(t, 2, h.session.FetchCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Sends))
}

func TestSendFailureKeepsDraft(t *testing.T) {
	h := connected(t, nil)
	cause := errors.New("write: broken pipe")
	h.session.SetSendError(cause)

	err := h.ctrl.Send(t.Context(), " keep me ")

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, " keep me ", sendErr.Text)
	assert.Equal(t, " keep me ", h.ctrl.Sender().Draft())
	assert.False(t, h.ctrl.Sender().Busy())

	notes := h.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Failed to send message", notes[0].Title)
	assert.ErrorIs(t, notes[0].Err, ErrSend)

	assert.Equal(t, 0, h.session.FetchCount(), "no fetch after a failed send")
	assert.Equal(t, 1, h.clock.Pending(), "sync loop resumed")
	assert.Equal(t, Connected, h.ctrl.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SendErrors))
}

func TestSecondSendWhileBusyIsRejected(t *testing.T) {
	h := connected(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.session.SetSendHook(func(ctx context.Context, text string) {
		close(entered)
		<-release
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = h.ctrl.Send(context.Background(), "first")
	}()
	<-entered

	assert.True(t, h.ctrl.Sender().Busy())
	assert.Equal(t, "first", h.ctrl.Sender().Draft())
	assert.ErrorIs(t, h.ctrl.Send(t.Context(), "second"), ErrSendInFlight)
	assert.Equal(t, 0, h.clock.Pending(), "sync loop suspended during the send")

	h.tick()
	assert.Equal(t, 0, h.session.FetchCount(), "no tick while sending")

	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Equal(t, []string{"first"}, h.session.Sent())
	assert.False(t, h.ctrl.Sender().Busy())
	assert.Equal(t, 1, h.clock.Pending())
}

func TestDisconnectRefusedWhileSending(t *testing.T) {
	h := connected(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.session.SetSendHook(func(ctx context.Context, text string) {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Send(context.Background(), "hi") }()
	<-entered

	assert.ErrorIs(t, h.ctrl.Disconnect(true), ErrSendInFlight)
	assert.Equal(t, Connected, h.ctrl.State())

	close(release)
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return !h.ctrl.Sender().Busy() }, time.Second, time.Millisecond)

	require.NoError(t, h.ctrl.Disconnect(true))
	assert.Equal(t, Disconnected, h.ctrl.State())
}

func TestSendForcesFollow(t *testing.T) {
	view := &fakeViewport{height: 20, content: 100}
	h := newHarness(t, nil)
	anchor := NewScrollAnchor(view, h.clock, DefaultBottomThreshold, DefaultSettleDelay)
	h.ctrl.opts.Anchor = anchor
	require.NoError(t, h.ctrl.Connect(t.Context(), ConnectParams{Address: "rac://host"}))

	anchor.OnScroll(view.scrollTo(0))
	require.False(t, anchor.AtBottom())

	h.session.QueueBatch(line("▲<anonymous> mine"))
	require.NoError(t, h.ctrl.Send(t.Context(), "mine"))
	assert.True(t, anchor.AtBottom())

	h.clock.Advance(DefaultSettleDelay)
	_, scrolls := view.state()
	assert.Equal(t, 1, scrolls)
}

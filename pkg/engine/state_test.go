package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []ConnState{Disconnected, Connecting, Connected, Disconnecting}
	allowed := map[[2]ConnState]bool{
		{Disconnected, Connecting}:    true,
		{Connecting, Connected}:       true,
		{Connecting, Disconnected}:    true,
		{Connected, Disconnecting}:    true,
		{Disconnecting, Disconnected}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]ConnState{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)

			err := checkTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s", from, to)
			}
		}
	}
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnecting", Disconnecting.String())
	assert.Equal(t, "ConnState(9)", ConnState(9).String())
}

func TestErrorTypesMatchSentinels(t *testing.T) {
	cause := errors.New("boom")

	connErr := &ConnectionError{Params: ConnectParams{Address: "rac://h"}, Err: cause}
	assert.ErrorIs(t, connErr, ErrConnection)
	assert.ErrorIs(t, connErr, cause)
	assert.Contains(t, connErr.Error(), "rac://h")

	fetchErr := &FetchError{Err: cause}
	assert.ErrorIs(t, fetchErr, ErrFetch)
	assert.ErrorIs(t, fetchErr, cause)
	assert.NotErrorIs(t, fetchErr, ErrSend)

	sendErr := &SendError{Text: "hi", Err: cause}
	assert.ErrorIs(t, sendErr, ErrSend)
	assert.ErrorIs(t, sendErr, cause)

	var target *SendError
	assert.True(t, errors.As(error(sendErr), &target))
	assert.Equal(t, "hi", target.Text)
}

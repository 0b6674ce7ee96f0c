package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSize(t *testing.T) {
	tests := []struct {
		name    string
		reply   []byte
		want    int
		wantErr bool
	}{
		{"plain", []byte("1234"), 1234, false},
		{"zero", []byte("0"), 0, false},
		{"nul padded", []byte("42\x00\x00"), 42, false},
		{"trailing newline", []byte("42\n"), 42, false},
		{"empty", []byte(""), 0, true},
		{"negative", []byte("-1"), 0, true},
		{"not a number", []byte("abc"), 0, true},
		{"too long", []byte(strings.Repeat("9", MaxSizeReplyLen+1)), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSize(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRequests(t *testing.T) {
	assert.Equal(t, []byte{0x00}, EncodeSizeRequest())
	assert.Equal(t, []byte("\x02128"), EncodeChunkRequest(128))
	assert.Equal(t, []byte("\x00\x02128"), EncodeWRACChunkRequest(128))
	assert.Equal(t, []byte("\x01hello"), EncodeSend("hello"))
	assert.Equal(t, []byte("\x02alice\nsecret\nhi"), EncodeAuthSend("alice", "secret", "hi"))
	assert.Equal(t, []byte("\x03alice\nsecret"), EncodeRegister("alice", "secret"))
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(EncodeSizeRequest())
	require.NoError(t, err)
	assert.Equal(t, RequestSize, req.Kind)

	req, err = DecodeRequest(EncodeWRACChunkRequest(42))
	require.NoError(t, err)
	assert.Equal(t, RequestChunk, req.Kind)
	assert.Equal(t, 42, req.Offset)

	req, err = DecodeRequest([]byte{CmdSize, CmdAll})
	require.NoError(t, err)
	assert.Equal(t, RequestChunk, req.Kind)
	assert.Equal(t, 0, req.Offset)

	req, err = DecodeRequest(EncodeSend("hi there"))
	require.NoError(t, err)
	assert.Equal(t, RequestSend, req.Kind)
	assert.Equal(t, "hi there", req.Text)

	req, err = DecodeRequest(EncodeAuthSend("alice", "pw", "multi\nline"))
	require.NoError(t, err)
	assert.Equal(t, RequestSendAuth, req.Kind)
	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "pw", req.Password)
	assert.Equal(t, "multi\nline", req.Text)

	req, err = DecodeRequest(EncodeRegister("bob", "pw2"))
	require.NoError(t, err)
	assert.Equal(t, RequestRegister, req.Kind)
	assert.Equal(t, "bob", req.Username)
	assert.Equal(t, "pw2", req.Password)

	_, err = DecodeRequest(nil)
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = DecodeRequest([]byte{0x7F})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeRequest([]byte("\x02only-user"))
	assert.ErrorIs(t, err, ErrMalformedAuth)
}

func TestDecodeFollowUp(t *testing.T) {
	offset, err := DecodeFollowUp([]byte{CmdAll})
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	offset, err = DecodeFollowUp(EncodeChunkRequest(77))
	require.NoError(t, err)
	assert.Equal(t, 77, offset)

	_, err = DecodeFollowUp([]byte("\x02x"))
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestReplies(t *testing.T) {
	assert.NoError(t, DecodeAuthReply(nil))
	assert.ErrorIs(t, DecodeAuthReply([]byte{ReplyUnknownUser}), ErrUnknownUser)
	assert.ErrorIs(t, DecodeAuthReply([]byte{ReplyBadPassword}), ErrBadPassword)
	assert.Error(t, DecodeAuthReply([]byte{0x09}))

	assert.NoError(t, DecodeRegisterReply(nil))
	assert.ErrorIs(t, DecodeRegisterReply([]byte{ReplyUserExists}), ErrUserExists)
}

func TestChunkSize(t *testing.T) {
	n, err := ChunkSize(100, 40)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	n, err = ChunkSize(40, 40)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A shrinking log (server restart) yields nothing rather than a negative read
	n, err = ChunkSize(10, 40)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = ChunkSize(MaxChunkSize+1, 0)
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines([]byte("one\r\n\ntwo\nthree\n"))
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	lines = SplitLines([]byte{'a', 0xff, 'b'})
	require.Len(t, lines, 1)
	assert.Equal(t, "a�b", lines[0])

	assert.Empty(t, SplitLines(nil))
}

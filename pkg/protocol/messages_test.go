package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineClients(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		client   string
		username string
		content  string
	}{
		{"tower", "▲<alice> hello there", ClientTower, "alice", "hello there"},
		{"bRAC", "리㹰<bob> hi", ClientBRAC, "bob", "hi"},
		{"CRAB", "═══<carol> yo", ClientCRAB, "carol", "yo"},
		{"mefedroniy", "°ʘ<dave> sup", ClientMefedroniy, "dave", "sup"},
		{"clRAC plain", "<eve> plain text", ClientClRAC, "eve", "plain text"},
		{"content with angle brackets", "▲<alice> a <b> c", ClientTower, "alice", "a <b> c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := ParseLine(tt.raw)
			parsed, ok := env.(Parsed)
			require.True(t, ok, "expected Parsed, got %T", env)
			assert.Equal(t, tt.client, parsed.Message.Client)
			assert.Equal(t, tt.username, parsed.Message.Username)
			assert.Equal(t, tt.content, parsed.Message.Content)
			assert.Equal(t, tt.raw, parsed.Raw())
			assert.Nil(t, parsed.Message.Timestamp)
		})
	}
}

func TestParseLineTimestamp(t *testing.T) {
	env := ParseLine("[05.03.2025 14:07] ▲<alice> morning")
	parsed, ok := env.(Parsed)
	require.True(t, ok)
	require.NotNil(t, parsed.Message.Timestamp)

	ts := *parsed.Message.Timestamp
	assert.Equal(t, 2025, ts.Year())
	assert.Equal(t, time.March, ts.Month())
	assert.Equal(t, 5, ts.Day())
	assert.Equal(t, 14, ts.Hour())
	assert.Equal(t, 7, ts.Minute())
	assert.Equal(t, "morning", parsed.Message.Content)
}

func TestParseLineUnknownDateKeepsMessage(t *testing.T) {
	parsed, ok := ParseLine("[yesterday] <bob> hi").(Parsed)
	require.True(t, ok)
	assert.Nil(t, parsed.Message.Timestamp)
	assert.Equal(t, "bob", parsed.Message.Username)
}

func TestParseLineStripsNoise(t *testing.T) {
	raw := "{ip 127.0.0.1} \x1b[31m▲<alice> red\x1b[0m\x07"
	parsed, ok := ParseLine(raw).(Parsed)
	require.True(t, ok)
	assert.Equal(t, "alice", parsed.Message.Username)
	assert.Equal(t, "red", parsed.Message.Content)
	assert.Equal(t, raw, parsed.Raw())
}

func TestParseLineAvatar(t *testing.T) {
	parsed, ok := ParseLine("리㹰<bob> look\x06!!AR!!https://example.com/a.png").(Parsed)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a.png", parsed.Message.AvatarURL)
	assert.Equal(t, "look", parsed.Message.Content)
}

func TestParseLineMalformed(t *testing.T) {
	for _, raw := range []string{
		"just some text",
		"alice: hello",
		"<nospace>",
	} {
		env := ParseLine(raw)
		malformed, ok := env.(Malformed)
		require.True(t, ok, "%q: expected Malformed, got %T", raw, env)
		assert.Equal(t, raw, malformed.Text)
		assert.Equal(t, raw, malformed.Raw())
	}
}

func TestParseBatchPreservesOrder(t *testing.T) {
	lines := []string{"▲<a> 1", "garbage", "<b> 2"}
	envs := ParseBatch(lines)
	require.Len(t, envs, 3)
	for i, env := range envs {
		assert.Equal(t, lines[i], env.Raw())
	}
	assert.IsType(t, Malformed{}, envs[1])
}

func TestFormatOutgoingRoundTrip(t *testing.T) {
	line := FormatOutgoing("alice", "hello world")
	assert.Equal(t, "▲<alice> hello world", line)

	parsed, ok := ParseLine(line).(Parsed)
	require.True(t, ok)
	assert.Equal(t, ClientTower, parsed.Message.Client)
	assert.Equal(t, "alice", parsed.Message.Username)
	assert.Equal(t, "hello world", parsed.Message.Content)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "plain", Sanitize("\x1b[1mpl\x00ain\x1b[0m"))
	assert.Equal(t, "tabsgone", Sanitize("tabs\tgone"))
}

package server

import (
	"strings"
	"sync"

	"github.com/aeolun/tower/pkg/protocol"
)

// MessageLog is the server's append-only byte log. Every message is stored
// as one line so a reader holding any size the server reported always ends
// on a line boundary.
type MessageLog struct {
	mu    sync.RWMutex
	data  []byte
	users map[string]string // username -> password
}

// NewMessageLog creates a log pre-filled with seed lines
func NewMessageLog(seed ...string) *MessageLog {
	l := &MessageLog{users: make(map[string]string)}
	for _, line := range seed {
		l.Append(line)
	}
	return l
}

// Append stores one message. Embedded newlines are flattened so a message
// can never span lines.
func (l *MessageLog) Append(text string) {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, text...)
	l.data = append(l.data, '\n')
}

// Size returns the log size in bytes
func (l *MessageLog) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.data)
}

// Range returns a copy of the bytes in [offset, end). Out of range bounds
// are clamped.
func (l *MessageLog) Range(offset, end int) []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if end > len(l.data) {
		end = len(l.data)
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= end {
		return []byte{}
	}
	out := make([]byte, end-offset)
	copy(out, l.data[offset:end])
	return out
}

// Lines returns every stored line (for tests and debugging)
func (l *MessageLog) Lines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return protocol.SplitLines(l.data)
}

// Register adds a user. Returns protocol.ErrUserExists for a taken name.
func (l *MessageLog) Register(username, password string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.users[username]; exists {
		return protocol.ErrUserExists
	}
	l.users[username] = password
	return nil
}

// Authenticate checks a username/password pair
func (l *MessageLog) Authenticate(username, password string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored, exists := l.users[username]
	if !exists {
		return protocol.ErrUnknownUser
	}
	if stored != password {
		return protocol.ErrBadPassword
	}
	return nil
}

package client

import (
	"context"

	"github.com/aeolun/tower/pkg/protocol"
)

// AnonymousUsername is used when a session is opened without credentials
const AnonymousUsername = "anonymous"

// Credentials identify the user on the server. An empty password sends
// unauthenticated messages under Username.
type Credentials struct {
	Username string
	Password string
}

// Opener opens remote sessions. The engine only talks to the server
// through this boundary, which allows for mocking in tests.
type Opener interface {
	Open(ctx context.Context, addr Address, creds *Credentials, useTLS bool) (Session, error)
}

// Session is one open connection to a RAC or WRAC server.
// Implementations must be safe for concurrent use.
type Session interface {
	// FetchMessages returns every line appended since the previous fetch,
	// in server order
	FetchMessages(ctx context.Context) ([]protocol.Envelope, error)

	// Send appends one message to the server log
	Send(ctx context.Context, text string) error

	// Close releases the session. Best effort.
	Close() error
}

// StateInterface defines the interface for client state persistence
// This allows for mocking in tests while the real State implements all these methods
type StateInterface interface {
	// Configuration
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	// Connect form defaults
	GetLastAddress() string
	SetLastAddress(address string) error
	GetLastUsername() string
	SetLastUsername(username string) error
	GetUseTLS() bool
	SetUseTLS(useTLS bool) error

	// Connection history
	GetLastSuccessfulScheme(serverAddress string) (string, error)
	SaveSuccessfulConnection(serverAddress string, scheme string) error
	ConnectionHistory(limit int) ([]HistoryEntry, error)

	// Close the state
	Close() error
}

package client

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped whenever initSchema changes in a way that needs a
// data migration rather than just CREATE IF NOT EXISTS
const schemaVersion = "1"

// HistoryEntry is one row of the connection history
type HistoryEntry struct {
	ServerAddress string
	Scheme        string
	LastSuccessAt time.Time
}

// State manages client-side persistent state
type State struct {
	db *sql.DB
}

// OpenState opens or creates the client state database
func OpenState(path string) (*State, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Client only needs one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	state := &State{db: db}

	if err := state.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return state, nil
}

func (s *State) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS Config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ConnectionHistory (
	server_address TEXT PRIMARY KEY,
	last_successful_scheme TEXT NOT NULL,
	last_success_at INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetConfig("schema_version", schemaVersion)
}

// Close closes the state database
func (s *State) Close() error {
	return s.db.Close()
}

// GetConfig retrieves a configuration value
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value
func (s *State) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// GetLastAddress returns the address of the last connect attempt
func (s *State) GetLastAddress() string {
	address, _ := s.GetConfig("last_address")
	return address
}

// SetLastAddress stores the address of the last connect attempt
func (s *State) SetLastAddress(address string) error {
	return s.SetConfig("last_address", address)
}

// GetLastUsername returns the last used username
func (s *State) GetLastUsername() string {
	username, _ := s.GetConfig("last_username")
	return username
}

// SetLastUsername stores the last used username
func (s *State) SetLastUsername(username string) error {
	return s.SetConfig("last_username", username)
}

// GetUseTLS returns whether TLS was enabled on the last connect
func (s *State) GetUseTLS() bool {
	val, _ := s.GetConfig("use_tls")
	return val == "true"
}

// SetUseTLS stores the TLS toggle
func (s *State) SetUseTLS(useTLS bool) error {
	if useTLS {
		return s.SetConfig("use_tls", "true")
	}
	return s.SetConfig("use_tls", "false")
}

// GetLastSuccessfulScheme retrieves the scheme that last worked for a server
func (s *State) GetLastSuccessfulScheme(serverAddress string) (string, error) {
	var scheme string
	err := s.db.QueryRow(`
		SELECT last_successful_scheme
		FROM ConnectionHistory
		WHERE server_address = ?
	`, serverAddress).Scan(&scheme)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil // No history for this server
	}
	return scheme, err
}

// SaveSuccessfulConnection records a successful connection for a server
func (s *State) SaveSuccessfulConnection(serverAddress string, scheme string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ConnectionHistory (server_address, last_successful_scheme, last_success_at)
		VALUES (?, ?, ?)
	`, serverAddress, scheme, time.Now().UnixMilli())
	return err
}

// ConnectionHistory returns the most recent successful connections, newest first
func (s *State) ConnectionHistory(limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT server_address, last_successful_scheme, last_success_at
		FROM ConnectionHistory
		ORDER BY last_success_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var at int64
		if err := rows.Scan(&entry.ServerAddress, &entry.Scheme, &at); err != nil {
			return nil, err
		}
		entry.LastSuccessAt = time.UnixMilli(at)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

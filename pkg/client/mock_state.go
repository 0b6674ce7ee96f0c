package client

import (
	"sort"
	"sync"
	"time"
)

// MockState is an in-memory test implementation of StateInterface
type MockState struct {
	mu sync.RWMutex

	// In-memory storage
	config  map[string]string
	history map[string]HistoryEntry

	// Error injection
	getConfigErr error
	setConfigErr error
	saveConnErr  error
}

// NewMockState creates a new mock state
func NewMockState() *MockState {
	return &MockState{
		config:  make(map[string]string),
		history: make(map[string]HistoryEntry),
	}
}

// GetConfig retrieves a configuration value
func (s *MockState) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getConfigErr != nil {
		return "", s.getConfigErr
	}

	return s.config[key], nil
}

// SetConfig stores a configuration value
func (s *MockState) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}

	s.config[key] = value
	return nil
}

func (s *MockState) GetLastAddress() string {
	address, _ := s.GetConfig("last_address")
	return address
}

func (s *MockState) SetLastAddress(address string) error {
	return s.SetConfig("last_address", address)
}

func (s *MockState) GetLastUsername() string {
	username, _ := s.GetConfig("last_username")
	return username
}

func (s *MockState) SetLastUsername(username string) error {
	return s.SetConfig("last_username", username)
}

func (s *MockState) GetUseTLS() bool {
	val, _ := s.GetConfig("use_tls")
	return val == "true"
}

func (s *MockState) SetUseTLS(useTLS bool) error {
	if useTLS {
		return s.SetConfig("use_tls", "true")
	}
	return s.SetConfig("use_tls", "false")
}

// GetLastSuccessfulScheme retrieves the last successful scheme (mock)
func (s *MockState) GetLastSuccessfulScheme(serverAddress string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[serverAddress].Scheme, nil
}

// SaveSuccessfulConnection records a successful connection (mock)
func (s *MockState) SaveSuccessfulConnection(serverAddress string, scheme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveConnErr != nil {
		return s.saveConnErr
	}

	s.history[serverAddress] = HistoryEntry{
		ServerAddress: serverAddress,
		Scheme:        scheme,
		LastSuccessAt: time.Now(),
	}
	return nil
}

// ConnectionHistory returns recorded connections, newest first (mock)
func (s *MockState) ConnectionHistory(limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]HistoryEntry, 0, len(s.history))
	for _, entry := range s.history {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSuccessAt.After(entries[j].LastSuccessAt)
	})
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close closes the mock state (no-op for in-memory)
func (s *MockState) Close() error {
	return nil
}

// Test helpers

// SetGetConfigError sets an error to return from GetConfig()
func (s *MockState) SetGetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getConfigErr = err
}

// SetSetConfigError sets an error to return from SetConfig()
func (s *MockState) SetSetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfigErr = err
}

// SetSaveConnectionError sets an error to return from SaveSuccessfulConnection()
func (s *MockState) SetSaveConnectionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveConnErr = err
}

// GetAllConfig returns all config (for testing)
func (s *MockState) GetAllConfig() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string)
	for k, v := range s.config {
		result[k] = v
	}
	return result
}

// Verify that MockState implements StateInterface
var _ StateInterface = (*MockState)(nil)

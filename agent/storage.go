package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/phishguard/aegis/core"
)

// Session is the client-side view of an authenticated session: the current
// token pair plus the cached user profile.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	User         core.User `json:"user"`
}

// Empty reports whether the session holds no credentials.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// SessionStorage is the injected persistence capability for client session
// state: explicit load/save/clear, no ambient globals.
type SessionStorage interface {
	// Load returns the persisted session, or a zero Session when none exists.
	Load() (Session, error)

	// Save persists the session, replacing any previous one.
	Save(session Session) error

	// Clear removes all persisted session state. Clearing an absent session
	// is not an error.
	Clear() error
}

// MemoryStorage keeps the session in process memory. Used in tests and in
// callers that do not want credentials on disk.
type MemoryStorage struct {
	mu      sync.Mutex
	session Session
}

// NewMemoryStorage creates an empty in-memory session storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *MemoryStorage) Save(session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	return nil
}

// FileStorage persists the session as a JSON file, the CLI analogue of the
// browser's local storage.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage creates a session storage backed by the given file path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Load() (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, nil
		}
		return Session{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	return session, nil
}

func (f *FileStorage) Save(session Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Credentials only; keep the file private to the user.
	if err := os.WriteFile(f.path, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

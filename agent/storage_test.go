package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/aegis/core"
)

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	storage := NewFileStorage(path)

	session := Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		User: core.User{
			ID:        "u-1",
			Username:  "tester",
			Email:     "tester@example.com",
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		},
	}
	require.NoError(t, storage.Save(session))

	loaded, err := storage.Load()
	require.NoError(t, err)
	assert.Equal(t, session, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStorageMissingFileIsEmptySession(t *testing.T) {
	storage := NewFileStorage(filepath.Join(t.TempDir(), "absent.json"))

	session, err := storage.Load()
	require.NoError(t, err)
	assert.True(t, session.Empty())
}

func TestFileStorageClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	storage := NewFileStorage(path)

	require.NoError(t, storage.Save(Session{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, storage.Clear())

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Clearing twice is fine.
	require.NoError(t, storage.Clear())
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStorage(path).Load()
	require.Error(t, err)
}

func TestMemoryStorage(t *testing.T) {
	storage := NewMemoryStorage()

	session, err := storage.Load()
	require.NoError(t, err)
	assert.True(t, session.Empty())

	require.NoError(t, storage.Save(Session{AccessToken: "a", RefreshToken: "r"}))
	session, err = storage.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", session.AccessToken)

	require.NoError(t, storage.Clear())
	session, err = storage.Load()
	require.NoError(t, err)
	assert.True(t, session.Empty())
}

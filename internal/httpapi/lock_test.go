package httpapi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.lock")

	lock, err := acquireLock(path)
	require.NoError(t, err)

	_, err = acquireLock(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another instance")

	require.NoError(t, lock.release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireLockTakesOverStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.lock")
	// A pid beyond the kernel's pid_max cannot belong to a live process.
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	lock, err := acquireLock(path)
	require.NoError(t, err)
	defer lock.release()

	pid, err := lockHolder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireLockAgedButHolderAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.lock")

	lock, err := acquireLock(path)
	require.NoError(t, err)
	defer lock.release()

	// A server up for a minute has a lock file older than staleAfter. The
	// holder (this process) is alive, so the lock must not be taken.
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err = acquireLock(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another instance")

	pid, err := lockHolder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPidAlive(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(999999999))
	assert.False(t, pidAlive(0))
	assert.False(t, pidAlive(-1))
}

func TestPIDFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.pid")
	require.NoError(t, writePIDFile(path, 47778))

	pid, port, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, 47778, port)

	removePIDFile(path)
	_, _, err = ReadPIDFile(path)
	assert.Error(t, err)
}

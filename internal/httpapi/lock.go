package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// staleAfter is how old a lock file may be before the holder's liveness is
// questioned. Age alone is not enough to take a lock over: the file is
// written once at startup, so a long-running server's lock is always old.
// Takeover additionally requires that the recorded PID is gone.
const staleAfter = 30 * time.Second

// instanceLock is the single-instance guard for the HTTP server.
type instanceLock struct {
	path string
}

// acquireLock exclusively creates the lock file containing our PID. A lock
// older than staleAfter is treated as abandoned and replaced.
func acquireLock(path string) (*instanceLock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &instanceLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock %s: %w", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			// Raced with the holder removing it; retry.
			continue
		}
		pid, pidErr := lockHolder(path)
		if time.Since(info.ModTime()) < staleAfter {
			return nil, fmt.Errorf("another instance (pid %d) holds %s", pid, path)
		}
		if pidErr == nil && pidAlive(pid) {
			return nil, fmt.Errorf("another instance (pid %d) holds %s", pid, path)
		}
		// Aged lock with no live holder; remove and retry the exclusive
		// create once.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("could not acquire lock %s", path)
}

func lockHolder(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

// pidAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything; EPERM still
// means the process is there.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// release removes the lock file.
func (l *instanceLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// pidFileContents is what the PID file carries, for ensure-server and
// humans running cat.
type pidFileContents struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
	Name      string    `json:"name"`
}

func writePIDFile(path string, port int) error {
	b, err := json.MarshalIndent(pidFileContents{
		PID:       os.Getpid(),
		Port:      port,
		StartedAt: time.Now(),
		Name:      "oracle-http",
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// ReadPIDFile parses a PID file; ensure-server uses it to find a running
// instance.
func ReadPIDFile(path string) (pid, port int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var c pidFileContents
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0, 0, err
	}
	return c.PID, c.Port, nil
}

func removePIDFile(path string) {
	os.Remove(path)
}

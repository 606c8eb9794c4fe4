package jsonl

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the writer lock.
var ErrLocked = errors.New("ledger is locked by another writer")

// WriterLock is the content of a ledger's lock file. The file exists only
// while an append is in progress.
type WriterLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// LockPath is the lock file guarding ledgerPath.
func LockPath(ledgerPath string) string {
	return ledgerPath + ".lock"
}

// unreadableLockGrace is how long a lock file that cannot be parsed is
// treated as held before it may be reclaimed.
const unreadableLockGrace = 30 * time.Second

// acquireLock publishes the lock file with a hard link from a fully written
// temp file, so the lock path never exists without its content. A lock left
// behind by a dead process on this host is reclaimed once; an unreadable
// lock is reclaimed only after unreadableLockGrace.
func acquireLock(ledgerPath string) (release func() error, err error) {
	lockPath := LockPath(ledgerPath)

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	data, err := json.MarshalIndent(WriterLock{
		Holder:    "tally",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	tmpPath, err := writeLockTemp(lockPath, data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmpPath, lockPath)
		if err == nil {
			return func() error { return releaseLock(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock: %w", err)
		}

		existing, ok := readLock(lockPath)
		if ok && isProcessAlive(existing.PID, existing.Hostname) {
			return nil, fmt.Errorf("%w (PID %d on %s, started %s)", ErrLocked,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		if !ok {
			age, statErr := lockAge(lockPath)
			if statErr == nil && age < unreadableLockGrace {
				return nil, fmt.Errorf("%w (unreadable lock %s, %s old)", ErrLocked, lockPath, age.Round(time.Second))
			}
			if statErr != nil && !os.IsNotExist(statErr) {
				return nil, fmt.Errorf("failed to stat lock: %w", statErr)
			}
		}
		if attempt > 0 {
			break
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		slog.Warn("reclaimed stale ledger lock", "lock", lockPath, "pid", existing.PID, "hostname", existing.Hostname)
	}
	return nil, fmt.Errorf("%w: could not reclaim %s", ErrLocked, lockPath)
}

// writeLockTemp writes data to a temp file beside lockPath and returns its
// path.
func writeLockTemp(lockPath string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create lock: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write lock: %w", err)
	}
	return tmpPath, nil
}

func lockAge(lockPath string) (time.Duration, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return 0, err
	}
	return time.Since(info.ModTime()), nil
}

func readLock(lockPath string) (WriterLock, bool) {
	var l WriterLock
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return l, false
	}
	if json.Unmarshal(data, &l) != nil || l.PID == 0 {
		return l, false
	}
	return l, true
}

func releaseLock(lockPath string) error {
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid exists on hostname. Processes on other
// hosts cannot be checked and are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: exists, but owned by someone else
	return errors.Is(err, syscall.EPERM)
}

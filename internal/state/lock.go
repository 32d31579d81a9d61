package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	logx "newsbot/pkg/logx"
)

// LockError reports that another run currently holds the state lock.
// The caller should abort rather than race on the state file.
type LockError struct {
	Path string
	PID  int
}

func (e *LockError) Error() string {
	return fmt.Sprintf("state lock %s held by pid %d", e.Path, e.PID)
}

// lockStaleAfter bounds how long a lock from a crashed run can linger. A
// single check completes in seconds, so an hour-old lock is never live
// (the pid check below usually clears stale locks much earlier).
const lockStaleAfter = time.Hour

// Lock is an advisory run lock next to the state file. The external
// scheduler is expected not to overlap runs; this is the safety net for
// when that discipline fails.
type Lock struct {
	path string
}

// AcquireLock takes the advisory lock for statePath. A lock left by a dead
// process (or older than lockStaleAfter) is broken and re-acquired once.
func AcquireLock(statePath string, log logx.Logger) (*Lock, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	path := statePath + ".lock"

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, cerr
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		pid, stale := inspectLock(path)
		if !stale {
			return nil, &LockError{Path: path, PID: pid}
		}
		log.Warn("breaking stale state lock", logx.String("path", path), logx.Int("pid", pid))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &LockError{Path: path}
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// inspectLock reads the holder pid and decides whether the lock is stale:
// the recorded process no longer exists, or the file is older than
// lockStaleAfter.
func inspectLock(path string) (pid int, stale bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		// Racing Release(); treat as stale and retry the exclusive create.
		return 0, true
	}
	fields := strings.Fields(string(b))
	if len(fields) > 0 {
		pid, _ = strconv.Atoi(fields[0])
	}

	if pid > 0 {
		if proc, err := os.FindProcess(pid); err == nil {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				return pid, true
			}
		}
	}

	if fi, err := os.Stat(path); err == nil && time.Since(fi.ModTime()) > lockStaleAfter {
		return pid, true
	}
	return pid, pid == 0
}

package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// LockSet hands out one IndexLock per workspace. When dir is set, a file
// lock under dir is taken as well so separate processes sharing a data
// directory also exclude each other.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*IndexLock
	dir   string
}

// NewLockSet creates a LockSet. An empty dir disables file locks.
func NewLockSet(dir string) *LockSet {
	return &LockSet{locks: make(map[string]*IndexLock), dir: dir}
}

// TryLock acquires the lock for workspace or fails with
// types.ErrWorkspaceLocked without waiting. The returned function releases
// it.
func (s *LockSet) TryLock(workspace string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[workspace]
	if !ok {
		l = &IndexLock{}
		s.locks[workspace] = l
	}
	s.mu.Unlock()

	if !l.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", types.ErrWorkspaceLocked, workspace)
	}
	if s.dir == "" {
		return l.Release, nil
	}

	fl, err := s.fileLock(workspace)
	if err != nil {
		l.Release()
		return nil, err
	}
	return func() {
		_ = fl.Unlock()
		l.Release()
	}, nil
}

func (s *LockSet) fileLock(workspace string) (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(s.dir, lockFileName(workspace)))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s (held by another process)", types.ErrWorkspaceLocked, workspace)
	}
	return fl, nil
}

// lockFileName maps a workspace name to a safe file name
func lockFileName(workspace string) string {
	b := []byte(workspace)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.') {
			b[i] = '_'
		}
	}
	return string(b) + ".lock"
}

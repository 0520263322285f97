package projectsync

import (
	"errors"
	"sync"
)

// ErrSyncInProgress is returned when a full sync is requested while one runs
var ErrSyncInProgress = errors.New("project sync already in progress")

// SyncStatus tracks whether a full sync is running. Incremental actions
// consult it and decline while it is set.
type SyncStatus struct {
	mu      sync.Mutex
	running bool
}

// TryStart marks a sync as running. It returns false if one already is.
// It waits for a commit running under WhileIdle to finish.
func (s *SyncStatus) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// Finish marks the running sync as done
func (s *SyncStatus) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// InProgress reports whether a full sync is running
func (s *SyncStatus) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// WhileIdle runs fn unless a full sync is running, in which case it returns
// ErrSyncInProgress. No sync can start until fn returns.
func (s *SyncStatus) WhileIdle(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSyncInProgress
	}
	return fn()
}

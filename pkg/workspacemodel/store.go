package workspacemodel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
)

// Persister writes a snapshot to durable storage. Persist must be atomic:
// if it returns an error nothing was written.
type Persister interface {
	Persist(ctx context.Context, tx Transaction, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Transaction describes one applied update
type Transaction struct {
	Name    string    `json:"name"`
	Version uint64    `json:"version"`
	Changes int       `json:"changes"`
	Time    time.Time `json:"time"`
}

// Store holds the current snapshot. Reads are lock free; updates are applied
// by one writer at a time.
type Store struct {
	writeMu   sync.Mutex
	current   atomic.Pointer[Snapshot]
	persister Persister

	historyMu sync.Mutex
	history   []Transaction
}

// NewStore creates an empty store. persister may be nil.
func NewStore(persister Persister) *Store {
	s := &Store{persister: persister}
	s.current.Store(emptySnapshot())
	return s
}

// CurrentSnapshot returns the latest snapshot
func (s *Store) CurrentSnapshot() *Snapshot {
	return s.current.Load()
}

// NewDiff opens a diff against the current snapshot
func (s *Store) NewDiff() *Diff {
	return NewDiff(s.CurrentSnapshot())
}

// Restore replaces the in-memory model with the persisted one, if any
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore project model: %w", err)
	}
	if snap == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(snap)
	logging.Info("restored project model", "modules", len(snap.modules), "version", snap.version)
	return nil
}

// Apply commits d as the named transaction. It fails with ErrStaleSnapshot
// if another update landed since d was opened. Either every mutation in d
// becomes visible or none does. A diff without changes is a no-op.
func (s *Store) Apply(ctx context.Context, name string, d *Diff) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.applyLocked(ctx, name, d)
}

// Update opens a diff against the current snapshot, lets fn stage mutations
// and applies them, all while holding the writer lock. If fn fails nothing
// is applied.
func (s *Store) Update(ctx context.Context, name string, fn func(*Diff) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	d := NewDiff(s.CurrentSnapshot())
	if err := fn(d); err != nil {
		return err
	}
	return s.applyLocked(ctx, name, d)
}

func (s *Store) applyLocked(ctx context.Context, name string, d *Diff) error {
	if d.base != s.CurrentSnapshot() {
		return ErrStaleSnapshot
	}
	if d.changes == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := d.apply()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return s.commitLocked(ctx, name, d.changes, next)
}

// ReplaceAll swaps in a model built by a full sync. targets are the ids of
// the pass; ownership entries naming other ids are dropped.
func (s *Store) ReplaceAll(ctx context.Context, name string, targets []model.Label, modules []*ModuleEntity, ownership map[string][]model.Label) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	next := emptySnapshot()
	next.version = s.CurrentSnapshot().version + 1
	for _, id := range targets {
		next.targets[id] = true
	}
	for _, m := range modules {
		next.modules[m.Name] = m.clone()
	}

	pruned := 0
	for path, ids := range ownership {
		set := make(map[model.Label]bool, len(ids))
		for _, id := range ids {
			if next.targets[id] {
				set[id] = true
			} else {
				pruned++
			}
		}
		if len(set) > 0 {
			next.ownership[path] = sortedLabels(set)
		}
	}
	if pruned > 0 {
		logging.Debug("pruned ownership entries of unknown targets", "count", pruned)
	}

	return s.commitLocked(ctx, name, len(modules), next)
}

func (s *Store) commitLocked(ctx context.Context, name string, changes int, next *Snapshot) error {
	tx := Transaction{Name: name, Version: next.version, Changes: changes, Time: time.Now()}

	// Once persisting starts the update runs to completion or rolls back
	if s.persister != nil {
		if err := s.persister.Persist(context.WithoutCancel(ctx), tx, next); err != nil {
			return fmt.Errorf("%s: failed to persist project model: %w", name, err)
		}
	}

	s.current.Store(next)

	s.historyMu.Lock()
	s.history = append(s.history, tx)
	s.historyMu.Unlock()

	logging.DebugContext(ctx, "project model updated",
		"transaction", name,
		"version", next.version,
		"changes", changes)
	return nil
}

// History returns the transactions applied since the store was created,
// newest last.
func (s *Store) History() []Transaction {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := append([]Transaction(nil), s.history...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Package watcher turns file system changes in a Bazel workspace into sync
// work: BUILD changes trigger a full sync, new source files are added to
// their modules incrementally.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/bazel-sync/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	// ChangeTypeBuildFile is a change to BUILD, BUILD.bazel, *.bzl or module files
	ChangeTypeBuildFile ChangeType = iota
	// ChangeTypeSourceFile is a newly created source file
	ChangeTypeSourceFile
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeBuildFile:
		return "build"
	case ChangeTypeSourceFile:
		return "source"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

const batchWindow = 100 * time.Millisecond

// FileWatcher watches a Bazel workspace for file changes
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	workspace string
	isSource  func(string) bool
	events    chan ChangeEvent
}

// NewFileWatcher creates a new file system watcher for a Bazel workspace.
// isSource decides which created files are reported as source files.
func NewFileWatcher(workspace string, isSource func(string) bool) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:   watcher,
		workspace: workspace,
		isSource:  isSource,
		events:    make(chan ChangeEvent, 100),
	}, nil
}

// Start watches every workspace directory and processes events until ctx is
// done, at which point the events channel is closed
func (fw *FileWatcher) Start(ctx context.Context) error {
	count, err := fw.watchTree(fw.workspace)
	if err != nil {
		fw.watcher.Close()
		return err
	}
	logging.Info("started watching workspace", "path", fw.workspace, "directories", count)

	go fw.processEvents(ctx)
	return nil
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// watchTree adds root and its subdirectories, skipping Bazel output
// symlinks and hidden directories
func (fw *FileWatcher) watchTree(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk workspace: %w", err)
	}
	return count, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, "bazel-") || strings.HasPrefix(name, ".")
}

// IsBuildFile reports whether a change to the named file changes targets
func IsBuildFile(name string) bool {
	switch name {
	case "BUILD", "BUILD.bazel", "MODULE.bazel", "WORKSPACE", "WORKSPACE.bazel":
		return true
	}
	return strings.HasSuffix(name, ".bzl")
}

// Classify returns the change type of an fsnotify event, and false for
// events that need no sync
func (fw *FileWatcher) Classify(event fsnotify.Event) (ChangeType, bool) {
	if event.Op == fsnotify.Chmod {
		return 0, false
	}
	if IsBuildFile(filepath.Base(event.Name)) {
		return ChangeTypeBuildFile, true
	}
	if event.Has(fsnotify.Create) && fw.isSource(event.Name) {
		if info, err := os.Stat(event.Name); err == nil && !info.IsDir() {
			return ChangeTypeSourceFile, true
		}
	}
	return 0, false
}

// processEvents batches events by type so one event is sent per burst
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	pending := make(map[ChangeType][]string)
	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeBuildFile, ChangeTypeSourceFile} {
			if len(pending[t]) == 0 {
				continue
			}
			select {
			case fw.events <- ChangeEvent{Type: t, Paths: pending[t], Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
		pending = make(map[ChangeType][]string)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// New directories may hold new packages or sources
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
					if _, err := fw.watchTree(event.Name); err != nil {
						logging.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			changeType, relevant := fw.Classify(event)
			if !relevant {
				continue
			}
			logging.Trace("workspace change", "path", event.Name, "type", changeType, "op", event.Op.String())
			pending[changeType] = append(pending[changeType], event.Name)
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

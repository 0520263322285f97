package watcher

import (
	"context"
	"errors"

	"github.com/ritzau/bazel-sync/pkg/filesync"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
)

// FullSyncer runs a full sync
type FullSyncer interface {
	Sync(ctx context.Context) (*projectsync.Result, error)
}

// FileAdder adds a single file to the modules that include it
type FileAdder interface {
	AddFile(ctx context.Context, path string) (*filesync.Result, error)
}

// Handle consumes debounced events until the channel closes or ctx is done
func Handle(ctx context.Context, events <-chan ChangeEvent, syncer FullSyncer, adder FileAdder) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			// Drain what is already queued so one full sync covers it all
			batch := []ChangeEvent{event}
			for drained := false; !drained; {
				select {
				case next, ok := <-events:
					if !ok {
						drained = true
						continue
					}
					batch = append(batch, next)
				default:
					drained = true
				}
			}
			apply(ctx, AnalyzeChanges(batch...), syncer, adder)
		}
	}
}

func apply(ctx context.Context, analysis *ChangeAnalysis, syncer FullSyncer, adder FileAdder) {
	if analysis.NeedFullSync {
		logging.Info("build files changed, syncing project", "files", len(analysis.ChangedFiles))
		if _, err := syncer.Sync(ctx); err != nil {
			if errors.Is(err, projectsync.ErrSyncInProgress) {
				logging.Debug("sync already running, change picked up by it")
				return
			}
			logging.Error("sync after build change failed", "error", err)
		}
		return
	}

	for _, path := range analysis.NewSourceFiles {
		result, err := adder.AddFile(ctx, path)
		switch {
		case errors.Is(err, projectsync.ErrSyncInProgress):
			logging.Debug("sync running, not adding file", "path", path)
		case errors.Is(err, filesync.ErrNotSourceFile):
			logging.Trace("ignoring non-source file", "path", path)
		case err != nil:
			logging.Warn("failed to add file to modules", "path", path, "error", err)
		case len(result.Added) == 0:
			logging.Debug("no module includes new file", "path", path)
		}
	}
}

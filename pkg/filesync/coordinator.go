// Package filesync attaches a newly created source file to the modules of
// the targets that include it, without a full sync.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ritzau/bazel-sync/pkg/bazel"
	"github.com/ritzau/bazel-sync/pkg/languages"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/progress"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
	"github.com/ritzau/bazel-sync/pkg/pubsub"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

const (
	// Transaction is the name of the project model update
	Transaction = "Add file to module (Bazel)"
	// Operation is the name progress is reported under
	Operation = "Add file to module"
)

// ErrNotSourceFile is returned for directories and files no plugin handles
var ErrNotSourceFile = errors.New("not a source file")

// State is the phase the coordinator is in
type State int32

const (
	Idle State = iota
	Querying
	Resolving
	Diffing
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Querying:
		return "querying"
	case Resolving:
		return "resolving"
	case Diffing:
		return "diffing"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Querier finds the targets whose sources include a workspace file
type Querier interface {
	InverseSources(ctx context.Context, relPath string) ([]model.Label, error)
}

// ModuleResolver resolves target ids into modules the way full sync does
type ModuleResolver interface {
	ResolveModules(ctx context.Context, ids []model.Label) ([]*workspacemodel.ModuleEntity, error)
}

// BazelQuerier answers inverse source queries with `bazel query`
type BazelQuerier struct {
	Executor bazel.Executor
	Root     string
}

func (q BazelQuerier) InverseSources(ctx context.Context, relPath string) ([]model.Label, error) {
	return bazel.InverseSources(ctx, q.Executor, q.Root, relPath)
}

// Options configures a Coordinator. Sink and Publisher may be nil.
type Options struct {
	Root      string
	Registry  *languages.Registry
	Querier   Querier
	Resolver  ModuleResolver
	Store     *workspacemodel.Store
	Status    *projectsync.SyncStatus
	Sink      progress.Sink
	Publisher pubsub.Publisher
}

// Result describes what one add did
type Result struct {
	Path    string        `json:"path"`
	Targets []model.Label `json:"targets"` // targets now owning the file
	Added   []string      `json:"added"`   // modules the file was added to
	Version uint64        `json:"version"` // model version after the add
}

// Coordinator runs add-file actions one at a time
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// New creates a coordinator
func New(opts Options) *Coordinator {
	if opts.Sink == nil {
		opts.Sink = progress.LogSink{}
	}
	return &Coordinator{opts: opts, logger: logging.New("filesync")}
}

// State returns the current phase
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// IsVisible reports whether the action applies to path: an existing file,
// not a directory, that a language plugin recognises as source.
func (c *Coordinator) IsVisible(p string) bool {
	rel, abs := c.paths(p)
	if rel == "" || !c.opts.Registry.IsSourceFile(rel) {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// IsEnabled reports whether the action may run now. It is disabled while a
// full sync is in progress.
func (c *Coordinator) IsEnabled() bool {
	return !c.opts.Status.InProgress()
}

// AddFile adds the workspace file p to the modules of the targets that
// include it and records those targets as its owners, in one transaction.
// While a full sync runs it declines with projectsync.ErrSyncInProgress and
// changes nothing. A failing query is treated as "no targets".
func (c *Coordinator) AddFile(ctx context.Context, p string) (*Result, error) {
	if !c.IsVisible(p) {
		return nil, fmt.Errorf("%w: %s", ErrNotSourceFile, p)
	}
	if !c.IsEnabled() {
		c.logger.Debug("add file declined during sync", "path", p)
		return nil, projectsync.ErrSyncInProgress
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.setState(Idle)

	rel, abs := c.paths(p)
	result := &Result{Path: rel}
	reporter := progress.NewSequentialReporter(Operation, c.opts.Sink)

	var targets []model.Label
	err := reporter.NextStep(80, "Querying targets", func() error {
		c.setState(Querying)
		ids, err := c.opts.Querier.InverseSources(ctx, rel)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Warn("inverse sources query failed, no targets found", "path", rel, "error", err)
			return nil
		}
		targets = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = reporter.NextStep(100, "Committing changes", func() error {
		return c.commit(ctx, rel, abs, targets, result)
	})
	if err != nil {
		return nil, err
	}
	reporter.Finish("File added")

	c.logger.Info("file added to modules", "path", rel, "targets", result.Targets, "modules", result.Added)
	return result, nil
}

func (c *Coordinator) commit(ctx context.Context, rel, abs string, targets []model.Label, result *Result) error {
	c.setState(Resolving)
	snap := c.opts.Store.CurrentSnapshot()
	var known []model.Label
	for _, id := range targets {
		if snap.KnowsTarget(id) {
			known = append(known, id)
		} else {
			c.logger.Debug("target not in project model, skipping", "target", id)
		}
	}
	if len(known) == 0 {
		result.Version = snap.Version()
		return nil
	}

	modules, err := c.resolve(ctx, snap, known)
	if err != nil {
		return err
	}

	c.setState(Diffing)
	prefix, hasPrefix := "", false
	if plugin := c.opts.Registry.PluginForFile(rel); plugin != nil {
		prefix, hasPrefix = plugin.CalculateJvmPackagePrefix(abs)
	}

	// No full sync may start while the diff commits
	err = c.opts.Status.WhileIdle(func() error {
		return c.opts.Store.Update(ctx, Transaction, func(d *workspacemodel.Diff) error {
			for _, m := range modules {
				if m.IsDummy() {
					continue
				}
				existing, ok := d.Module(m.Name)
				if ok && existing.IsDummy() {
					continue
				}
				if !ok {
					d.PutModule(m)
				}

				root := workspacemodel.ContentRoot{
					Path: rel,
					Kind: workspacemodel.ClassifyFile(rel, m.Kind, c.opts.Registry.IsSourceFile),
				}
				if hasPrefix {
					root.PackagePrefix = prefix
				}
				added, err := d.AddFile(m.Name, root)
				if err != nil {
					return err
				}
				if added {
					result.Added = append(result.Added, m.Name)
				}
			}

			c.setState(Committing)
			d.AddOwners(rel, known...)
			result.Targets = d.Owners(rel)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, projectsync.ErrSyncInProgress) {
			c.logger.Debug("sync started before commit, add file declined", "path", rel)
		}
		return err
	}

	after := c.opts.Store.CurrentSnapshot()
	result.Version = after.Version()
	if after != snap {
		projectsync.PublishModel(c.opts.Publisher, Transaction, after)
	}
	return nil
}

// resolve uses the last sync pass when there is one; a model restored from
// disk falls back to the modules it already holds
func (c *Coordinator) resolve(ctx context.Context, snap *workspacemodel.Snapshot, ids []model.Label) ([]*workspacemodel.ModuleEntity, error) {
	modules, err := c.opts.Resolver.ResolveModules(ctx, ids)
	if err == nil {
		return modules, nil
	}
	if !errors.Is(err, projectsync.ErrNoSyncContext) {
		return nil, err
	}

	modules = modules[:0]
	for _, id := range ids {
		if m, ok := snap.ModuleForTarget(id); ok {
			modules = append(modules, m)
		}
	}
	return modules, nil
}

// paths returns the workspace-relative and absolute form of p. rel is
// empty for paths outside the workspace.
func (c *Coordinator) paths(p string) (rel, abs string) {
	if filepath.IsAbs(p) {
		r, err := filepath.Rel(c.opts.Root, p)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return "", p
		}
		return filepath.ToSlash(r), p
	}
	rel = path.Clean(filepath.ToSlash(p))
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", p
	}
	return rel, filepath.Join(c.opts.Root, filepath.FromSlash(rel))
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

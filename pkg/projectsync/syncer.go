// Package projectsync runs a full sync: load every target from Bazel, derive
// the lookups of the pass, resolve each target into a module and replace the
// project model in one transaction.
package projectsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ritzau/bazel-sync/pkg/bazel"
	"github.com/ritzau/bazel-sync/pkg/config"
	"github.com/ritzau/bazel-sync/pkg/languages"
	"github.com/ritzau/bazel-sync/pkg/languages/java"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/paths"
	"github.com/ritzau/bazel-sync/pkg/progress"
	"github.com/ritzau/bazel-sync/pkg/pubsub"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

// Transaction names recorded in the project model history
const (
	SyncTransaction = "Sync project (Bazel)"
	SyncOperation   = "Sync project"
)

// ErrNoSyncContext is returned by ResolveModules before the first pass
var ErrNoSyncContext = errors.New("no completed sync pass")

// Loader loads the targets of the workspace
type Loader interface {
	Load(ctx context.Context, cfg *config.Config) (*model.ProjectDetails, bazel.Info, error)
}

// RegistryFactory creates the language plugins of a pass
type RegistryFactory func(resolver *paths.Resolver) *languages.Registry

// DiscoverFunc lists the source files of a workspace, relative to its root
type DiscoverFunc func(ctx context.Context, root string, isSource func(string) bool) (map[string]bool, error)

// JavaRegistry returns a factory registering the Java plugin configured by cfg
func JavaRegistry(cfg *config.Config) RegistryFactory {
	return func(resolver *paths.Resolver) *languages.Registry {
		return languages.NewRegistry(java.New(resolver, java.NewJdkResolver(resolver), java.Options{
			VersionFlags:     cfg.Java.VersionFlags,
			SourceExtensions: cfg.Java.SourceExtensions,
		}))
	}
}

// Options configures a ProjectSyncer. Only Config, Loader and Store are
// required.
type Options struct {
	Config    *config.Config
	Loader    Loader
	Store     *workspacemodel.Store
	Status    *SyncStatus
	Registry  RegistryFactory
	Sink      progress.Sink
	Publisher pubsub.Publisher
	Discover  DiscoverFunc
}

// Result summarises a completed pass
type Result struct {
	PassID       string          `json:"passId"`
	Workspace    string          `json:"workspace"`
	Targets      int             `json:"targets"`
	Modules      int             `json:"modules"`
	DummyModules int             `json:"dummyModules"`
	Skipped      []model.Label   `json:"skipped,omitempty"` // targets no plugin produced a module for
	Cycles       [][]model.Label `json:"cycles,omitempty"`
	Warnings     []error         `json:"-"`
	Uncovered    []string        `json:"uncovered,omitempty"`
	Version      uint64          `json:"version"`
	Duration     time.Duration   `json:"duration"`
}

// ProjectSyncer runs full syncs and keeps the context of the last pass for
// incremental updates
type ProjectSyncer struct {
	cfg       *config.Config
	loader    Loader
	store     *workspacemodel.Store
	status    *SyncStatus
	registry  RegistryFactory
	sink      progress.Sink
	publisher pubsub.Publisher
	discover  DiscoverFunc
	logger    *slog.Logger

	mu      sync.RWMutex
	current *SyncContext
}

// New creates a syncer
func New(opts Options) *ProjectSyncer {
	s := &ProjectSyncer{
		cfg:       opts.Config,
		loader:    opts.Loader,
		store:     opts.Store,
		status:    opts.Status,
		registry:  opts.Registry,
		sink:      opts.Sink,
		publisher: opts.Publisher,
		discover:  opts.Discover,
		logger:    logging.New("sync"),
	}
	if s.status == nil {
		s.status = &SyncStatus{}
	}
	if s.registry == nil {
		s.registry = JavaRegistry(opts.Config)
	}
	if s.sink == nil {
		s.sink = progress.LogSink{}
	}
	if s.discover == nil {
		s.discover = bazel.DiscoverSourceFiles
	}
	return s
}

// Status returns the flag shared with incremental actions
func (s *ProjectSyncer) Status() *SyncStatus {
	return s.status
}

// Store returns the project model store the syncer writes to
func (s *ProjectSyncer) Store() *workspacemodel.Store {
	return s.store
}

// Current returns the context of the last completed pass, or nil
func (s *ProjectSyncer) Current() *SyncContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Sync runs a full pass. It fails with ErrSyncInProgress if another pass is
// running. The project model is only replaced if every step succeeds.
func (s *ProjectSyncer) Sync(ctx context.Context) (*Result, error) {
	if !s.status.TryStart() {
		return nil, ErrSyncInProgress
	}
	defer s.status.Finish()

	start := time.Now()
	reporter := progress.NewSequentialReporter(SyncOperation, s.sink)

	var (
		project *model.ProjectDetails
		info    bazel.Info
		sc      *SyncContext
		modules []*workspacemodel.ModuleEntity
		skipped []model.Label
		dummies []*workspacemodel.ModuleEntity
		result  = &Result{}
	)

	err := reporter.NextStep(40, "Query targets", func() error {
		var err error
		project, info, err = s.loader.Load(ctx, s.cfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	err = reporter.NextStep(50, "Build dependency graph", func() error {
		resolver := paths.NewResolver(s.cfg.Workspace, info.ExecutionRoot, info.OutputBase)
		ws := languages.WorkspaceContext{Root: s.cfg.Workspace, JavaHomeOverride: s.cfg.JavaHome}
		sc = NewSyncContext(project, s.registry(resolver), resolver, ws)
		result.Cycles = sc.Graph.FindCycles()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sync pass started", "pass", sc.ID, "targets", sc.Index.Len())

	err = reporter.NextStep(85, "Resolve modules", func() error {
		var err error
		modules, skipped, err = s.resolveAll(ctx, sc, sc.Index.IDs())
		return err
	})
	if err != nil {
		return nil, err
	}

	ownership := sc.Ownership()
	if s.cfg.Dummies {
		err = reporter.NextStep(90, "Find uncovered files", func() error {
			var err error
			dummies, result.Uncovered, err = s.dummyModules(ctx, sc, modules, ownership)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	err = reporter.NextStep(100, "Commit project model", func() error {
		all := append(append([]*workspacemodel.ModuleEntity(nil), modules...), dummies...)
		return s.store.ReplaceAll(ctx, SyncTransaction, sc.Index.IDs(), all, ownership)
	})
	if err != nil {
		return nil, err
	}
	reporter.Finish("Project synced")

	s.mu.Lock()
	s.current = sc
	s.mu.Unlock()

	snap := s.store.CurrentSnapshot()
	PublishModel(s.publisher, SyncTransaction, snap)

	result.PassID = sc.ID
	result.Workspace = project.Name
	result.Targets = sc.Index.Len()
	result.Modules = len(modules)
	result.DummyModules = len(dummies)
	result.Skipped = skipped
	result.Warnings = sc.Transformer.Warnings()
	result.Version = snap.Version()
	result.Duration = time.Since(start)

	for _, cycle := range result.Cycles {
		s.logger.Warn("dependency cycle", "targets", cycle)
	}
	s.logger.Info("sync pass finished",
		"pass", sc.ID,
		"modules", result.Modules,
		"skipped", len(skipped),
		"cycles", len(result.Cycles),
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// ResolveModules resolves ids against the last completed pass. Ids the pass
// does not know fail the call; targets that produce no module are left out.
func (s *ProjectSyncer) ResolveModules(ctx context.Context, ids []model.Label) ([]*workspacemodel.ModuleEntity, error) {
	sc := s.Current()
	if sc == nil {
		return nil, ErrNoSyncContext
	}
	modules, _, err := s.resolveAll(ctx, sc, ids)
	return modules, err
}

// resolveAll resolves ids in parallel, bounded by the configured
// concurrency. Modules are returned sorted by name.
func (s *ProjectSyncer) resolveAll(ctx context.Context, sc *SyncContext, ids []model.Label) ([]*workspacemodel.ModuleEntity, []model.Label, error) {
	results := make([]*workspacemodel.ModuleEntity, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := sc.ResolveModule(id)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", id, err)
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		modules []*workspacemodel.ModuleEntity
		skipped []model.Label
	)
	for i, m := range results {
		if m == nil {
			skipped = append(skipped, ids[i])
			continue
		}
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return modules, skipped, nil
}

// dummyModules groups the source files no module covers into one
// placeholder module per directory
func (s *ProjectSyncer) dummyModules(ctx context.Context, sc *SyncContext, modules []*workspacemodel.ModuleEntity, ownership map[string][]model.Label) ([]*workspacemodel.ModuleEntity, []string, error) {
	discovered, err := s.discover(ctx, s.cfg.Workspace, sc.Registry.IsSourceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover source files: %w", err)
	}

	covered := make(map[string]bool)
	for _, m := range modules {
		for _, r := range m.ContentRoots {
			covered[r.Path] = true
		}
	}
	uncovered := bazel.FindUncoveredFiles(discovered, func(f string) bool {
		return covered[f] || len(ownership[f]) > 0
	})

	byDir := make(map[string]*workspacemodel.ModuleEntity)
	var dummies []*workspacemodel.ModuleEntity
	for _, f := range uncovered {
		name := workspacemodel.DummyModuleName(path.Dir(f))
		m, ok := byDir[name]
		if !ok {
			m = &workspacemodel.ModuleEntity{Name: name, Source: workspacemodel.DummyEntitySource}
			byDir[name] = m
			dummies = append(dummies, m)
		}
		m.ContentRoots = append(m.ContentRoots, workspacemodel.ContentRoot{
			Path: f,
			Kind: workspacemodel.ContentSource,
		})
	}
	s.logger.Debug("uncovered source files", "files", len(uncovered), "dummyModules", len(dummies))
	return dummies, uncovered, nil
}

// PublishModel announces an applied transaction on the project_model topic.
// publisher may be nil.
func PublishModel(publisher pubsub.Publisher, transaction string, snap *workspacemodel.Snapshot) {
	if publisher == nil {
		return
	}
	update := pubsub.ModelUpdate{
		Transaction: transaction,
		Version:     snap.Version(),
		Modules:     len(snap.Modules()),
	}
	if err := publisher.PublishModel(update); err != nil {
		logging.Debug("failed to publish model update", "error", err)
	}
}

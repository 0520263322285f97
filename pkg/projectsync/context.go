package projectsync

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/ritzau/bazel-sync/pkg/dependencygraph"
	"github.com/ritzau/bazel-sync/pkg/index"
	"github.com/ritzau/bazel-sync/pkg/languages"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/paths"
	"github.com/ritzau/bazel-sync/pkg/transformer"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

// SyncContext owns everything derived for one sync pass. It is built once,
// read concurrently while modules are resolved, and dropped as a whole when
// the next pass replaces it.
type SyncContext struct {
	ID          string
	Workspace   languages.WorkspaceContext
	Project     *model.ProjectDetails
	Index       *index.TargetIndex
	Graph       *dependencygraph.DependencyGraph
	Transformer *transformer.Transformer
	Registry    *languages.Registry
	Paths       *paths.Resolver
}

// NewSyncContext builds the lookups of a pass and prepares every plugin
func NewSyncContext(project *model.ProjectDetails, registry *languages.Registry, resolver *paths.Resolver, ws languages.WorkspaceContext) *SyncContext {
	idx := index.New(project)
	graph := dependencygraph.New(idx)

	sc := &SyncContext{
		ID:          uuid.New().String(),
		Workspace:   ws,
		Project:     project,
		Index:       idx,
		Graph:       graph,
		Transformer: transformer.New(project, idx, graph),
		Registry:    registry,
		Paths:       resolver,
	}
	registry.PrepareSync(idx.Targets(), ws)
	return sc
}

// ResolveModule turns one target into a module entity. It returns nil
// without error for library targets, when no plugin handles the target or
// when the plugin finds nothing to build a module from. Unknown ids fail with
// transformer.ErrTargetNotFound.
func (sc *SyncContext) ResolveModule(id model.Label) (*workspacemodel.ModuleEntity, error) {
	details, err := sc.Transformer.ModuleDetailsForTarget(id)
	if err != nil {
		return nil, err
	}
	target := details.Target
	if target.Kind.IsLibrary() {
		return nil, nil
	}

	plugin := sc.Registry.PluginFor(target.Kind)
	if plugin == nil {
		logging.Trace("no language plugin for target", "target", id, "kind", target.Kind)
		return nil, nil
	}
	data := plugin.ResolveModule(target)
	if data == nil {
		logging.Trace("target resolved to no module", "target", id, "plugin", plugin.Name())
		return nil, nil
	}

	m := &workspacemodel.ModuleEntity{
		Name:                workspacemodel.ModuleName(id),
		TargetID:            id,
		Kind:                target.Kind,
		Source:              workspacemodel.BazelEntitySource,
		LibraryDependencies: details.LibraryDependencies,
		BuildTarget:         &languages.BuildTarget{ID: id, Kind: target.Kind},
	}
	for _, dep := range details.ModuleDependencies {
		m.ModuleDependencies = append(m.ModuleDependencies, workspacemodel.ModuleName(dep))
	}
	plugin.ApplyModuleData(data, m.BuildTarget)

	seen := make(map[string]bool)
	addRoot := func(abs string, kind workspacemodel.ContentKind) {
		rel := sc.relative(abs)
		if seen[rel] {
			return
		}
		seen[rel] = true
		root := workspacemodel.ContentRoot{Path: rel, Kind: kind}
		if kind != workspacemodel.ContentResource {
			if prefix, ok := plugin.CalculateJvmPackagePrefix(abs); ok {
				root.PackagePrefix = prefix
			}
		}
		m.ContentRoots = append(m.ContentRoots, root)
	}

	for _, loc := range target.Sources {
		path := sc.Paths.Resolve(loc)
		addRoot(path, workspacemodel.ClassifyFile(path, target.Kind, sc.Registry.IsSourceFile))
	}
	for _, loc := range target.GeneratedSources {
		path := sc.Paths.Resolve(loc)
		addRoot(path, workspacemodel.ClassifyFile(path, target.Kind, sc.Registry.IsSourceFile))
	}
	for _, loc := range target.Resources {
		addRoot(sc.Paths.Resolve(loc), workspacemodel.ContentResource)
	}
	for _, path := range plugin.DependencySources(target, sc.Graph) {
		addRoot(path, workspacemodel.ClassifyFile(path, target.Kind, sc.Registry.IsSourceFile))
	}

	return m, nil
}

// Ownership maps every workspace file declared in srcs or resources to the
// targets declaring it
func (sc *SyncContext) Ownership() map[string][]model.Label {
	owners := make(map[string][]model.Label)
	for _, t := range sc.Index.Targets() {
		for _, group := range [][]model.FileLocation{t.Sources, t.Resources} {
			for _, loc := range group {
				if !loc.IsSource || loc.IsExternal {
					continue
				}
				owners[loc.RelativePath] = append(owners[loc.RelativePath], t.ID)
			}
		}
	}
	for path, ids := range owners {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		owners[path] = dedupe(ids)
	}
	return owners
}

// relative returns the workspace-relative slash path of abs, or abs itself
// for files outside the workspace
func (sc *SyncContext) relative(abs string) string {
	if rel, ok := sc.Paths.Relativize(abs); ok {
		return rel
	}
	return filepath.ToSlash(abs)
}

func (sc *SyncContext) String() string {
	return fmt.Sprintf("sync pass %s (%d targets)", sc.ID, sc.Index.Len())
}

func dedupe(sorted []model.Label) []model.Label {
	out := sorted[:0]
	for i, l := range sorted {
		if i == 0 || l != sorted[i-1] {
			out = append(out, l)
		}
	}
	return out
}

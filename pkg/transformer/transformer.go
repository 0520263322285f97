// Package transformer joins the per-pass lookups into the module details of
// a single target.
package transformer

import (
	"errors"
	"sort"
	"sync"

	"github.com/ritzau/bazel-sync/pkg/dependencygraph"
	"github.com/ritzau/bazel-sync/pkg/index"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
)

// Transformer produces ModuleDetails for the targets of one pass. It is safe
// for concurrent use.
type Transformer struct {
	project *model.ProjectDetails
	idx     *index.TargetIndex
	graph   *dependencygraph.DependencyGraph

	mu       sync.Mutex
	warnings map[model.Label]error
}

// New creates a transformer over the lookups of one pass
func New(project *model.ProjectDetails, idx *index.TargetIndex, graph *dependencygraph.DependencyGraph) *Transformer {
	return &Transformer{
		project:  project,
		idx:      idx,
		graph:    graph,
		warnings: make(map[model.Label]error),
	}
}

// ModuleDetailsForTarget returns the details of id. Unknown ids fail with a
// *TargetNotFoundError. A dependency cycle is not fatal: it is recorded as a
// warning and the dependencies found before the cycle are used.
func (t *Transformer) ModuleDetailsForTarget(id model.Label) (*model.ModuleDetails, error) {
	target, ok := t.idx.Target(id)
	if !ok {
		return nil, &TargetNotFoundError{ID: id}
	}

	deps, err := t.graph.CalculateAllDependencies(target)
	if err != nil {
		if !errors.Is(err, dependencygraph.ErrCycle) {
			return nil, err
		}
		logging.Warn("dependency graph integrity problem", "target", id, "error", err)
		t.mu.Lock()
		t.warnings[id] = err
		t.mu.Unlock()
	}

	sourceDeps := t.project.TargetSourceDependencies[id]
	logging.Trace("transformed target", "target", id, "sourceDependencies", len(sourceDeps))

	details := &model.ModuleDetails{
		Target:             target,
		JavacOptions:       t.idx.JavacOptions(id),
		ModuleDependencies: deps.ModuleDependencies,
		DefaultJdkName:     t.project.DefaultJdkName,
		JvmBinaryJars:      t.idx.JvmBinaryJars(id),
		SourceDependencies: sourceDeps,
	}
	if t.project.LibrariesLoaded() {
		details.LibraryDependencies = deps.LibraryDependencies
	}
	return details, nil
}

// Warnings returns the graph integrity problems met so far, ordered by target
func (t *Transformer) Warnings() []error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]model.Label, 0, len(t.warnings))
	for id := range t.warnings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]error, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.warnings[id])
	}
	return out
}

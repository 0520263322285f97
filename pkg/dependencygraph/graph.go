// Package dependencygraph computes transitive and reverse dependencies over
// the targets of one sync pass.
package dependencygraph

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/ritzau/bazel-sync/pkg/index"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
)

// AllDependencies is the deduplicated transitive closure of a target,
// split by how each dependency is consumed.
type AllDependencies struct {
	LibraryDependencies []model.Label
	ModuleDependencies  []model.Label
}

// DependencyGraph is a read-only view over the dependency edges of one pass.
// Reverse lookups are derived lazily from the edge set and cached.
type DependencyGraph struct {
	idx       *index.TargetIndex
	graph     *simple.DirectedGraph
	ids       map[model.Label]int64
	labels    map[int64]model.Label
	selfLoops map[model.Label]bool

	umbrellaOnce sync.Once
	umbrellas    map[model.Label][]*model.TargetInfo
}

// New builds the graph from every target in the index. Dependencies on
// labels that were not loaded still become nodes so they can be reported
// as library dependencies.
func New(idx *index.TargetIndex) *DependencyGraph {
	dg := &DependencyGraph{
		idx:       idx,
		graph:     simple.NewDirectedGraph(),
		ids:       make(map[model.Label]int64),
		labels:    make(map[int64]model.Label),
		selfLoops: make(map[model.Label]bool),
	}

	for _, t := range idx.Targets() {
		dg.addNode(t.ID)
	}
	for _, t := range idx.Targets() {
		for _, dep := range t.Dependencies {
			dg.addEdge(t.ID, dep)
		}
	}

	return dg
}

func (dg *DependencyGraph) addNode(label model.Label) int64 {
	if id, ok := dg.ids[label]; ok {
		return id
	}
	id := int64(len(dg.ids))
	dg.ids[label] = id
	dg.labels[id] = label
	dg.graph.AddNode(simple.Node(id))
	return id
}

func (dg *DependencyGraph) addEdge(from, to model.Label) {
	// gonum's simple graphs reject self edges
	if from == to {
		dg.selfLoops[from] = true
		return
	}
	fromID := dg.addNode(from)
	toID := dg.addNode(to)
	if !dg.graph.HasEdgeFromTo(fromID, toID) {
		dg.graph.SetEdge(dg.graph.NewEdge(dg.graph.Node(fromID), dg.graph.Node(toID)))
	}
}

// DirectDependencies returns the labels target depends on directly, sorted
func (dg *DependencyGraph) DirectDependencies(label model.Label) []model.Label {
	id, ok := dg.ids[label]
	if !ok {
		return nil
	}
	var deps []model.Label
	iter := dg.graph.From(id)
	for iter.Next() {
		deps = append(deps, dg.labels[iter.Node().ID()])
	}
	sortLabels(deps)
	return deps
}

// IsLibrary reports whether a dependency on label is consumed as a library:
// registered library jars, import rules, external repositories, and labels
// that were not loaded as targets this pass.
func (dg *DependencyGraph) IsLibrary(label model.Label) bool {
	if _, ok := dg.idx.Library(label); ok {
		return true
	}
	if label.IsExternal() {
		return true
	}
	t, ok := dg.idx.Target(label)
	if !ok {
		return true
	}
	return t.Kind.IsLibrary()
}

// CalculateAllDependencies returns the transitive dependencies of target.
// Dependencies reachable over several paths appear once. If a cycle is
// found the walk does not re-enter it; the dependencies collected so far
// are returned together with a *CycleError.
func (dg *DependencyGraph) CalculateAllDependencies(target *model.TargetInfo) (AllDependencies, error) {
	w := &walk{
		dg:      dg,
		state:   make(map[model.Label]visitState),
		modules: make(map[model.Label]bool),
		libs:    make(map[model.Label]bool),
	}
	w.visit(target.ID, nil)

	result := AllDependencies{
		LibraryDependencies: setToSorted(w.libs),
		ModuleDependencies:  setToSorted(w.modules),
	}

	if w.cycle != nil {
		logging.Debug("dependency cycle while resolving target", "target", target.ID, "cycle", w.cycle.Path)
		return result, w.cycle
	}
	return result, nil
}

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

type walk struct {
	dg      *DependencyGraph
	state   map[model.Label]visitState
	modules map[model.Label]bool
	libs    map[model.Label]bool
	cycle   *CycleError
}

func (w *walk) visit(label model.Label, stack []model.Label) {
	w.state[label] = inProgress
	stack = append(stack, label)

	if w.dg.selfLoops[label] && w.cycle == nil {
		w.cycle = &CycleError{Path: []model.Label{label, label}}
	}

	for _, dep := range w.dg.DirectDependencies(label) {
		switch w.state[dep] {
		case inProgress:
			if w.cycle == nil {
				w.cycle = &CycleError{Path: cyclePath(stack, dep)}
			}
			continue
		case done:
			continue
		}

		if w.dg.IsLibrary(dep) {
			w.libs[dep] = true
		} else {
			w.modules[dep] = true
		}
		w.visit(dep, stack)
	}

	w.state[label] = done
}

// cyclePath returns the stack suffix starting at the re-entered label,
// closed with that label again.
func cyclePath(stack []model.Label, reentered model.Label) []model.Label {
	for i, l := range stack {
		if l == reentered {
			path := make([]model.Label, 0, len(stack)-i+1)
			path = append(path, stack[i:]...)
			return append(path, reentered)
		}
	}
	return []model.Label{reentered, reentered}
}

// SourcesFromReverseDependencies returns the umbrella targets of a shard:
// the targets that directly depend on label and whose declared and
// generated sources cover every source of the shard. Only one hop is
// considered. The result is empty for ordinary libraries, whose consumers
// declare sources of their own, and for targets nothing depends on.
func (dg *DependencyGraph) SourcesFromReverseDependencies(label model.Label) []*model.TargetInfo {
	dg.umbrellaOnce.Do(dg.buildUmbrellas)
	return dg.umbrellas[label]
}

func (dg *DependencyGraph) buildUmbrellas() {
	dg.umbrellas = make(map[model.Label][]*model.TargetInfo)
	for label, id := range dg.ids {
		shard, _ := dg.idx.Target(label)
		var dependents []*model.TargetInfo
		iter := dg.graph.To(id)
		for iter.Next() {
			t, ok := dg.idx.Target(dg.labels[iter.Node().ID()])
			if !ok || (len(t.Sources) == 0 && len(t.GeneratedSources) == 0) {
				continue
			}
			if !covers(t, shard) {
				logging.Trace("dependent does not cover shard sources", "shard", label, "dependent", t.ID)
				continue
			}
			dependents = append(dependents, t)
		}
		if len(dependents) == 0 {
			continue
		}
		sort.Slice(dependents, func(i, j int) bool { return dependents[i].ID < dependents[j].ID })
		dg.umbrellas[label] = dependents
	}
}

// covers reports whether umbrella declares every source of shard. A shard
// that is not loaded or declares nothing is covered trivially.
func covers(umbrella, shard *model.TargetInfo) bool {
	if shard == nil {
		return true
	}
	declared := make(map[model.FileLocation]bool, len(umbrella.Sources)+len(umbrella.GeneratedSources))
	for _, f := range umbrella.Sources {
		declared[f] = true
	}
	for _, f := range umbrella.GeneratedSources {
		declared[f] = true
	}
	for _, f := range shard.Sources {
		if !declared[f] {
			return false
		}
	}
	for _, f := range shard.GeneratedSources {
		if !declared[f] {
			return false
		}
	}
	return true
}

// FindCycles returns every dependency cycle in the pass, each as the list of
// labels forming one strongly connected component. Self-dependencies are
// reported as single-label cycles.
func (dg *DependencyGraph) FindCycles() [][]model.Label {
	var cycles [][]model.Label
	for _, scc := range NewTarjanSCC(dg.graph).FindSCCs() {
		labels := make([]model.Label, 0, len(scc))
		for _, id := range scc {
			labels = append(labels, dg.labels[id])
		}
		sortLabels(labels)
		cycles = append(cycles, labels)
	}
	for label := range dg.selfLoops {
		cycles = append(cycles, []model.Label{label})
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func setToSorted(set map[model.Label]bool) []model.Label {
	out := make([]model.Label, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sortLabels(out)
	return out
}

func sortLabels(labels []model.Label) {
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
}

package workspacemodel

import (
	"sort"
	"sync"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// Snapshot is an immutable view of the project model
type Snapshot struct {
	version   uint64
	modules   map[string]*ModuleEntity
	ownership map[string][]model.Label
	targets   map[model.Label]bool

	fileIndexOnce sync.Once
	fileIndex     map[string][]string
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		modules:   make(map[string]*ModuleEntity),
		ownership: make(map[string][]model.Label),
		targets:   make(map[model.Label]bool),
	}
}

// Version increases by one with every applied update
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Module returns the module named name
func (s *Snapshot) Module(name string) (*ModuleEntity, bool) {
	m, ok := s.modules[name]
	return m, ok
}

// Modules returns all modules sorted by name
func (s *Snapshot) Modules() []*ModuleEntity {
	out := make([]*ModuleEntity, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ModuleForTarget returns the module backed by target id
func (s *Snapshot) ModuleForTarget(id model.Label) (*ModuleEntity, bool) {
	for _, m := range s.modules {
		if m.TargetID == id && !m.IsDummy() {
			return m, true
		}
	}
	return nil, false
}

// ModulesForFile returns the modules that have path as a content root,
// sorted by name.
func (s *Snapshot) ModulesForFile(path string) []*ModuleEntity {
	s.fileIndexOnce.Do(func() {
		s.fileIndex = make(map[string][]string)
		for name, m := range s.modules {
			for _, r := range m.ContentRoots {
				s.fileIndex[r.Path] = append(s.fileIndex[r.Path], name)
			}
		}
	})

	names := append([]string(nil), s.fileIndex[path]...)
	sort.Strings(names)
	out := make([]*ModuleEntity, 0, len(names))
	for _, n := range names {
		out = append(out, s.modules[n])
	}
	return out
}

// Owners returns the target ids that include path, sorted
func (s *Snapshot) Owners(path string) []model.Label {
	return append([]model.Label(nil), s.ownership[path]...)
}

// Ownership returns a copy of the whole file -> targets mapping
func (s *Snapshot) Ownership() map[string][]model.Label {
	out := make(map[string][]model.Label, len(s.ownership))
	for path, ids := range s.ownership {
		out[path] = append([]model.Label(nil), ids...)
	}
	return out
}

// KnowsTarget reports whether id belongs to the pass the model was built from
func (s *Snapshot) KnowsTarget(id model.Label) bool {
	return s.targets[id]
}

// Targets returns the target ids of the pass the model was built from
func (s *Snapshot) Targets() []model.Label {
	return sortedLabels(s.targets)
}

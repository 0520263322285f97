// Package index holds the immutable per-sync lookup tables built from the
// targets Bazel reported for one sync pass.
package index

import (
	"sort"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// TargetIndex maps target ids to their descriptor, javac options and binary
// jars. It is built once per pass and safe for concurrent reads afterwards.
type TargetIndex struct {
	targets       map[model.Label]*model.TargetInfo
	javacOptions  map[model.Label]*model.JavacOptions
	jvmBinaryJars map[model.Label][]model.JvmBinaryJars
	libraries     map[model.Label]*model.Library
	ids           []model.Label
}

// New builds the index for a pass. Later duplicates of a target id win,
// matching the order Bazel reports them in.
func New(p *model.ProjectDetails) *TargetIndex {
	idx := &TargetIndex{
		targets:       make(map[model.Label]*model.TargetInfo, len(p.Targets)),
		javacOptions:  make(map[model.Label]*model.JavacOptions, len(p.JavacOptions)),
		jvmBinaryJars: make(map[model.Label][]model.JvmBinaryJars),
		libraries:     make(map[model.Label]*model.Library, len(p.Libraries)),
	}

	for _, t := range p.Targets {
		if _, seen := idx.targets[t.ID]; !seen {
			idx.ids = append(idx.ids, t.ID)
		}
		idx.targets[t.ID] = t
	}
	for i := range p.JavacOptions {
		opts := &p.JavacOptions[i]
		idx.javacOptions[opts.Target] = opts
	}
	for _, jars := range p.JvmBinaryJars {
		idx.jvmBinaryJars[jars.Target] = append(idx.jvmBinaryJars[jars.Target], jars)
	}
	for i := range p.Libraries {
		lib := &p.Libraries[i]
		idx.libraries[lib.ID] = lib
	}

	sort.Slice(idx.ids, func(i, j int) bool { return idx.ids[i] < idx.ids[j] })
	return idx
}

// Target returns the descriptor for id
func (idx *TargetIndex) Target(id model.Label) (*model.TargetInfo, bool) {
	t, ok := idx.targets[id]
	return t, ok
}

// Contains reports whether id was loaded in this pass
func (idx *TargetIndex) Contains(id model.Label) bool {
	_, ok := idx.targets[id]
	return ok
}

// JavacOptions returns the javac options of id, or nil
func (idx *TargetIndex) JavacOptions(id model.Label) *model.JavacOptions {
	return idx.javacOptions[id]
}

// JvmBinaryJars returns the binary jars of id; never nil
func (idx *TargetIndex) JvmBinaryJars(id model.Label) []model.JvmBinaryJars {
	jars := idx.jvmBinaryJars[id]
	if jars == nil {
		return []model.JvmBinaryJars{}
	}
	return jars
}

// Library returns the library registered under id
func (idx *TargetIndex) Library(id model.Label) (*model.Library, bool) {
	lib, ok := idx.libraries[id]
	return lib, ok
}

// IDs returns all target ids in sorted order
func (idx *TargetIndex) IDs() []model.Label {
	out := make([]model.Label, len(idx.ids))
	copy(out, idx.ids)
	return out
}

// Targets returns all descriptors in id order
func (idx *TargetIndex) Targets() []*model.TargetInfo {
	out := make([]*model.TargetInfo, 0, len(idx.ids))
	for _, id := range idx.ids {
		out = append(out, idx.targets[id])
	}
	return out
}

// Len returns the number of targets
func (idx *TargetIndex) Len() int {
	return len(idx.ids)
}

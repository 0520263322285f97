package workspacemodel

import (
	"fmt"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// Diff is a set of staged mutations against one snapshot. Nothing is visible
// to readers until the store applies it.
type Diff struct {
	base      *Snapshot
	modules   map[string]*ModuleEntity // nil value = removed
	ownership map[string][]model.Label
	changes   int
}

// NewDiff opens a diff against base
func NewDiff(base *Snapshot) *Diff {
	return &Diff{
		base:      base,
		modules:   make(map[string]*ModuleEntity),
		ownership: make(map[string][]model.Label),
	}
}

// Base returns the snapshot the diff was opened against
func (d *Diff) Base() *Snapshot {
	return d.base
}

// Changes returns the number of staged mutations
func (d *Diff) Changes() int {
	return d.changes
}

// Module returns the staged state of a module
func (d *Diff) Module(name string) (*ModuleEntity, bool) {
	if m, staged := d.modules[name]; staged {
		return m, m != nil
	}
	return d.base.Module(name)
}

// PutModule adds or replaces a module
func (d *Diff) PutModule(m *ModuleEntity) {
	d.modules[m.Name] = m.clone()
	d.changes++
}

// RemoveModule removes a module if it exists
func (d *Diff) RemoveModule(name string) {
	if _, ok := d.Module(name); !ok {
		return
	}
	d.modules[name] = nil
	d.changes++
}

// AddFile attaches path to a module. It returns false without staging
// anything when the module already has the file.
func (d *Diff) AddFile(name string, root ContentRoot) (bool, error) {
	m, ok := d.Module(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if m.HasFile(root.Path) {
		return false, nil
	}

	staged, isStaged := d.modules[name]
	if !isStaged {
		staged = m.clone()
		d.modules[name] = staged
	}
	staged.ContentRoots = append(staged.ContentRoots, root)
	d.changes++
	return true, nil
}

// Owners returns the staged owners of path
func (d *Diff) Owners(path string) []model.Label {
	if ids, ok := d.ownership[path]; ok {
		return append([]model.Label(nil), ids...)
	}
	return d.base.Owners(path)
}

// AddOwners adds target ids to the owners of path
func (d *Diff) AddOwners(path string, ids ...model.Label) {
	set := make(map[model.Label]bool)
	for _, id := range d.Owners(path) {
		set[id] = true
	}
	added := false
	for _, id := range ids {
		if !set[id] {
			set[id] = true
			added = true
		}
	}
	if !added {
		return
	}
	d.ownership[path] = sortedLabels(set)
	d.changes++
}

// apply builds the snapshot resulting from the diff
func (d *Diff) apply() (*Snapshot, error) {
	next := emptySnapshot()
	next.version = d.base.version + 1
	next.targets = d.base.targets

	for name, m := range d.base.modules {
		next.modules[name] = m
	}
	for name, m := range d.modules {
		if m == nil {
			delete(next.modules, name)
			continue
		}
		next.modules[name] = m
	}

	for path, ids := range d.base.ownership {
		next.ownership[path] = ids
	}
	for path, ids := range d.ownership {
		next.ownership[path] = ids
	}

	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// validate checks that ownership only names targets of the current pass
func (s *Snapshot) validate() error {
	for path, ids := range s.ownership {
		for _, id := range ids {
			if !s.targets[id] {
				return &UnknownTargetError{Path: path, ID: id}
			}
		}
	}
	return nil
}

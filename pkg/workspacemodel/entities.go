// Package workspacemodel is the project model store: immutable snapshots of
// module entities and source ownership, mutable diffs against a snapshot, and
// named atomic updates applied by a single writer at a time.
package workspacemodel

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/ritzau/bazel-sync/pkg/languages"
	"github.com/ritzau/bazel-sync/pkg/model"
)

// EntitySource tells where an entity came from
type EntitySource string

const (
	// BazelEntitySource marks modules backed by a real Bazel target
	BazelEntitySource EntitySource = "bazel"
	// DummyEntitySource marks placeholder modules holding files no target covers
	DummyEntitySource EntitySource = "dummy"
)

// ContentKind categorises a file attached to a module
type ContentKind string

const (
	ContentSource     ContentKind = "source"
	ContentTestSource ContentKind = "test"
	ContentResource   ContentKind = "resource"
)

// ContentRoot is one file attached to a module
type ContentRoot struct {
	Path          string      `json:"path"`
	Kind          ContentKind `json:"kind"`
	PackagePrefix string      `json:"packagePrefix,omitempty"` // JVM package declared by the file, if any
}

// ModuleEntity is a module in the project model. Its identity is Name.
type ModuleEntity struct {
	Name                string                 `json:"name"`
	TargetID            model.Label            `json:"targetId"`
	Kind                model.TargetKind       `json:"kind"`
	Source              EntitySource           `json:"source"`
	ContentRoots        []ContentRoot          `json:"contentRoots"`
	ModuleDependencies  []string               `json:"moduleDependencies,omitempty"`
	LibraryDependencies []model.Label          `json:"libraryDependencies,omitempty"`
	BuildTarget         *languages.BuildTarget `json:"buildTarget,omitempty"`
}

// IsDummy reports whether the module is a placeholder
func (m *ModuleEntity) IsDummy() bool {
	return m.Source == DummyEntitySource
}

// HasFile reports whether path is one of the module's content roots
func (m *ModuleEntity) HasFile(path string) bool {
	for _, r := range m.ContentRoots {
		if r.Path == path {
			return true
		}
	}
	return false
}

// Equal reports module identity
func (m *ModuleEntity) Equal(other *ModuleEntity) bool {
	return other != nil && m.Name == other.Name
}

func (m *ModuleEntity) clone() *ModuleEntity {
	c := *m
	c.ContentRoots = append([]ContentRoot(nil), m.ContentRoots...)
	c.ModuleDependencies = append([]string(nil), m.ModuleDependencies...)
	c.LibraryDependencies = append([]model.Label(nil), m.LibraryDependencies...)
	return &c
}

// ModuleName derives the module name of a label:
// "//core/util:util" -> "core.util.util", "@maven//:guava" -> "maven.guava"
func ModuleName(label model.Label) string {
	var parts []string
	if repo := label.Repo(); repo != "" {
		parts = append(parts, repo)
	}
	if pkg := label.Package(); pkg != "" {
		parts = append(parts, strings.Split(pkg, "/")...)
	}
	parts = append(parts, label.Name())
	return strings.Join(parts, ".")
}

// ClassifyFile returns how path is attached to a module of the given kind.
// The extension decides between source and resource.
func ClassifyFile(path string, kind model.TargetKind, isSource func(string) bool) ContentKind {
	if !isSource(path) {
		return ContentResource
	}
	if strings.HasSuffix(string(kind), "_test") {
		return ContentTestSource
	}
	return ContentSource
}

// DummyModuleName names the placeholder module of a workspace directory
func DummyModuleName(dir string) string {
	dir = filepath.ToSlash(filepath.Clean(dir))
	if dir == "." || dir == "" {
		return "_dummy"
	}
	return "_dummy." + strings.ReplaceAll(dir, "/", ".")
}

func sortedLabels(set map[model.Label]bool) []model.Label {
	out := make([]model.Label, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

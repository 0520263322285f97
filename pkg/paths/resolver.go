// Package paths maps Bazel file locations to absolute paths on disk.
package paths

import (
	"path/filepath"
	"strings"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// Resolver resolves FileLocations reported by Bazel
type Resolver struct {
	workspaceRoot string
	execRoot      string
	outputBase    string
}

// NewResolver creates a resolver. execRoot and outputBase may be empty, in
// which case they default to the bazel-* convenience symlinks in the workspace.
func NewResolver(workspaceRoot, execRoot, outputBase string) *Resolver {
	if execRoot == "" {
		execRoot = filepath.Join(workspaceRoot, "bazel-"+filepath.Base(workspaceRoot))
	}
	if outputBase == "" {
		outputBase = filepath.Join(execRoot, "..", "..")
	}
	return &Resolver{
		workspaceRoot: workspaceRoot,
		execRoot:      execRoot,
		outputBase:    filepath.Clean(outputBase),
	}
}

// WorkspaceRoot returns the root the resolver was created for
func (r *Resolver) WorkspaceRoot() string {
	return r.workspaceRoot
}

// Resolve returns the absolute path of a file location
func (r *Resolver) Resolve(loc model.FileLocation) string {
	rel := filepath.FromSlash(loc.RelativePath)
	switch {
	case loc.IsSource && loc.IsExternal:
		return filepath.Join(r.outputBase, "external", rel)
	case loc.IsSource:
		return filepath.Join(r.workspaceRoot, rel)
	default:
		return filepath.Join(r.execRoot, filepath.FromSlash(loc.RootExecutionPathFragment), rel)
	}
}

// ResolveAll resolves a list of locations, preserving order
func (r *Resolver) ResolveAll(locs []model.FileLocation) []string {
	out := make([]string, 0, len(locs))
	for _, loc := range locs {
		out = append(out, r.Resolve(loc))
	}
	return out
}

// Relativize returns the workspace-relative slash path of an absolute path,
// and false if the path is outside the workspace.
func (r *Resolver) Relativize(path string) (string, bool) {
	rel, err := filepath.Rel(r.workspaceRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

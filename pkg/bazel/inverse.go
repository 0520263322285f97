package bazel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// ErrNoPackage is returned for files outside every Bazel package
var ErrNoPackage = errors.New("file is not inside a Bazel package")

var buildFileNames = []string{"BUILD.bazel", "BUILD"}

// FileLabel returns the source file label of a workspace-relative path by
// finding the nearest enclosing package.
// e.g., "core/src/A.java" with core/BUILD -> "//core:src/A.java"
func FileLabel(workspaceRoot, relPath string) (model.Label, error) {
	relPath = path.Clean(filepath.ToSlash(relPath))
	dir := path.Dir(relPath)
	for {
		pkg := dir
		if pkg == "." {
			pkg = ""
		}
		if hasBuildFile(filepath.Join(workspaceRoot, filepath.FromSlash(pkg))) {
			name := relPath
			if pkg != "" {
				name = strings.TrimPrefix(relPath, pkg+"/")
			}
			return model.Label("//" + pkg + ":" + name), nil
		}
		if pkg == "" {
			return "", fmt.Errorf("%w: %s", ErrNoPackage, relPath)
		}
		dir = path.Dir(dir)
	}
}

func hasBuildFile(dir string) bool {
	for _, name := range buildFileNames {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// InverseSources returns the JVM targets whose srcs or resources include the
// workspace-relative file. Query failures are returned to the caller.
func InverseSources(ctx context.Context, executor Executor, workspaceRoot, relPath string) ([]model.Label, error) {
	label, err := FileLabel(workspaceRoot, relPath)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("kind(rule, rdeps(//..., '%s', 1))", label)
	output, err := executor.RunQuery(ctx, workspaceRoot, query)
	if err != nil {
		return nil, fmt.Errorf("inverse sources query for %s: %w", label, err)
	}

	parsed, err := NewParser().ParseQueryOutput(output)
	if err != nil {
		return nil, err
	}

	var targets []model.Label
	for _, t := range parsed.Targets {
		if containsFile(t, label) {
			targets = append(targets, t.ID)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets, nil
}

func containsFile(t *model.TargetInfo, file model.Label) bool {
	want := path.Join(file.Package(), file.Name())
	for _, group := range [][]model.FileLocation{t.Sources, t.Resources} {
		for _, loc := range group {
			if loc.IsSource && !loc.IsExternal && loc.RelativePath == want {
				return true
			}
		}
	}
	return false
}

package bazel

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverSourceFiles finds the source files of the workspace using git
// ls-files. It respects .gitignore and includes both tracked and
// untracked-but-not-ignored files. Only files inside a Bazel package and
// accepted by isSource are returned, as workspace-relative slash paths.
func DiscoverSourceFiles(ctx context.Context, workspaceRoot string, isSource func(string) bool) (map[string]bool, error) {
	discovered := make(map[string]bool)

	trackedFiles, err := runGitLsFiles(ctx, workspaceRoot, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked files: %w", err)
	}

	untrackedFiles, err := runGitLsFiles(ctx, workspaceRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("failed to get untracked files: %w", err)
	}

	allFiles := append(trackedFiles, untrackedFiles...)
	packageDirs := packageDirectories(allFiles)

	for _, file := range allFiles {
		if !isSource(file) {
			continue
		}

		fileDir := filepath.ToSlash(filepath.Dir(file))
		if fileDir == "." {
			fileDir = ""
		}

		if isInPackage(fileDir, packageDirs) {
			discovered[filepath.ToSlash(file)] = true
		}
	}

	return discovered, nil
}

// FindUncoveredFiles returns the discovered files that isOwned rejects,
// sorted. These exist in the workspace but no module includes them.
func FindUncoveredFiles(discovered map[string]bool, isOwned func(string) bool) []string {
	var uncovered []string

	for file := range discovered {
		if !isOwned(file) {
			uncovered = append(uncovered, file)
		}
	}

	sort.Strings(uncovered)
	return uncovered
}

func runGitLsFiles(ctx context.Context, workspaceRoot string, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workspaceRoot

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			files = append(files, line)
		}
	}

	return files, scanner.Err()
}

// packageDirectories returns the directories holding a BUILD or BUILD.bazel
// file, with "" for the workspace root.
func packageDirectories(files []string) map[string]bool {
	packages := make(map[string]bool)
	for _, file := range files {
		base := filepath.Base(file)
		if base != "BUILD" && base != "BUILD.bazel" {
			continue
		}
		dir := filepath.ToSlash(filepath.Dir(file))
		if dir == "." {
			dir = ""
		}
		packages[dir] = true
	}
	return packages
}

// isInPackage checks if a directory is in a package or its subdirectories
func isInPackage(fileDir string, packageDirs map[string]bool) bool {
	if packageDirs[fileDir] {
		return true
	}

	for pkgDir := range packageDirs {
		if pkgDir == "" {
			// Root package contains everything
			return true
		}
		if strings.HasPrefix(fileDir, pkgDir+"/") {
			return true
		}
	}

	return false
}

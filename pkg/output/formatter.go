// Package output prints sync results to the console
package output

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/fatih/color"

	"github.com/ritzau/bazel-sync/pkg/filesync"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
)

// Color definitions
var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// PrintSyncReport prints the summary of a full sync
func PrintSyncReport(w io.Writer, r *projectsync.Result) {
	// Header
	bold.Fprintln(w, "Bazel Sync - Project Report")
	bold.Fprintln(w, "===========================")
	fmt.Fprintf(w, "Workspace: %s\n", r.Workspace)
	fmt.Fprintf(w, "Targets: %d\n", r.Targets)
	green.Fprintf(w, "Modules: %d\n", r.Modules)
	if r.DummyModules > 0 {
		yellow.Fprintf(w, "Placeholder modules: %d\n", r.DummyModules)
	}
	if len(r.Skipped) > 0 {
		cyan.Fprintf(w, "Targets without a module: %d\n", len(r.Skipped))
	}
	fmt.Fprintln(w)

	if len(r.Cycles) > 0 {
		red.Fprintln(w, "DEPENDENCY CYCLES:")
		for _, cycle := range r.Cycles {
			yellow.Fprintf(w, "  %v\n", cycle)
		}
		fmt.Fprintln(w)
	}
	if len(r.Warnings) > 0 {
		yellow.Fprintln(w, "WARNINGS:")
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  %v\n", warning)
		}
		fmt.Fprintln(w)
	}

	summary := green
	if len(r.Cycles) > 0 || len(r.Warnings) > 0 {
		summary = yellow
	}
	summary.Fprintf(w, "Synced in %s (model version %d)\n", r.Duration.Round(time.Millisecond), r.Version)
}

// PrintCoverageReport prints the source files no module covers
func PrintCoverageReport(w io.Writer, workspace string, totalFiles int, uncovered []string) {
	coveredFiles := totalFiles - len(uncovered)

	// Header
	bold.Fprintln(w, "Bazel Sync - Coverage Report")
	bold.Fprintln(w, "============================")
	fmt.Fprintf(w, "Workspace: %s\n", workspace)
	fmt.Fprintf(w, "Scanned: %d source files\n", totalFiles)

	// Coverage stats with colors
	if len(uncovered) == 0 {
		green.Fprintf(w, "Covered: %d files\n", coveredFiles)
		green.Fprintf(w, "Uncovered: 0 files\n")
	} else {
		fmt.Fprintf(w, "Covered: %d files\n", coveredFiles)
		yellow.Fprintf(w, "Uncovered: %d file(s)\n", len(uncovered))
	}
	fmt.Fprintln(w)

	// Uncovered files list
	if len(uncovered) > 0 {
		red.Fprintln(w, "UNCOVERED FILES:")
		for _, f := range uncovered {
			yellow.Fprintf(w, "  %s\n", f)
			cyan.Fprintf(w, "    Directory: %s\n", path.Dir(f))
		}
		fmt.Fprintln(w)
	}

	// Summary with color based on coverage percentage
	percentage := 100.0
	if totalFiles > 0 {
		percentage = float64(coveredFiles) / float64(totalFiles) * 100.0
	}

	summaryColor := green
	if percentage < 100.0 {
		summaryColor = yellow
	}
	if percentage < 80.0 {
		summaryColor = red
	}

	summaryColor.Fprintf(w, "Summary: %.0f%% coverage (%d/%d files)\n", percentage, coveredFiles, totalFiles)

	// Success check mark if 100%
	if percentage == 100.0 {
		green.Fprintln(w, "✓ All source files belong to a module!")
	}
}

// PrintAddFileResult prints the outcome of an add-file action
func PrintAddFileResult(w io.Writer, r *filesync.Result) {
	if len(r.Targets) == 0 {
		yellow.Fprintf(w, "No target includes %s\n", r.Path)
		return
	}
	bold.Fprintf(w, "%s\n", r.Path)
	for _, t := range r.Targets {
		cyan.Fprintf(w, "  owned by %s\n", t)
	}
	if len(r.Added) == 0 {
		fmt.Fprintln(w, "  already in every module")
		return
	}
	for _, m := range r.Added {
		green.Fprintf(w, "  added to %s\n", m)
	}
}

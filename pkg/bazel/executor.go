package bazel

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor handles the execution of Bazel commands
type Executor interface {
	RunQuery(ctx context.Context, workspacePath string, query string) ([]byte, error)
	Run(ctx context.Context, workspacePath string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default implementation of Executor that runs actual commands
type DefaultExecutor struct {
	Binary string // defaults to "bazel"
}

// NewExecutor creates a new default Bazel executor
func NewExecutor() Executor {
	return &DefaultExecutor{Binary: "bazel"}
}

// RunQuery executes a Bazel query and returns the raw XML output.
// It respects the provided context for cancellation.
func (e *DefaultExecutor) RunQuery(ctx context.Context, workspacePath string, query string) ([]byte, error) {
	return e.Run(ctx, workspacePath, "query", query, "--output=xml")
}

// Run executes an arbitrary Bazel command and returns its stdout
func (e *DefaultExecutor) Run(ctx context.Context, workspacePath string, args ...string) ([]byte, error) {
	bin := e.Binary
	if bin == "" {
		bin = "bazel"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = workspacePath

	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("bazel %s failed: %w\nOutput: %s", args[0], err, stderr.String())
	}

	return output, nil
}

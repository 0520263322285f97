package bazel

import (
	"bufio"
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// Info holds the output locations reported by `bazel info`
type Info struct {
	ExecutionRoot string
	OutputBase    string
	BinFragment   string // bazel-bin relative to the execution root
}

// QueryInfo runs `bazel info` for the roots the paths resolver needs.
// Missing values are left empty.
func QueryInfo(ctx context.Context, executor Executor, workspacePath string) (Info, error) {
	output, err := executor.Run(ctx, workspacePath, "info", "execution_root", "output_base", "bazel-bin")
	if err != nil {
		return Info{}, err
	}

	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return Info{}, err
	}

	info := Info{
		ExecutionRoot: values["execution_root"],
		OutputBase:    values["output_base"],
	}
	if bin := values["bazel-bin"]; bin != "" && info.ExecutionRoot != "" {
		if rel, err := filepath.Rel(info.ExecutionRoot, bin); err == nil && !strings.HasPrefix(rel, "..") {
			info.BinFragment = filepath.ToSlash(rel)
		}
	}
	return info, nil
}

// GetWorkspaceName attempts to determine the workspace/module name from:
// 1. `bazel mod graph` command (if using Bazel modules/bzlmod)
// 2. Directory name as fallback
func GetWorkspaceName(ctx context.Context, executor Executor, workspacePath string) (string, error) {
	// Try to get module name from `bazel mod graph`
	if output, err := executor.Run(ctx, workspacePath, "mod", "graph"); err == nil {
		if name := parseRootModuleName(string(output)); name != "" {
			return name, nil
		}
	}

	// Fallback: use directory name
	absPath, err := filepath.Abs(workspacePath)
	if err != nil {
		return "", err
	}

	return filepath.Base(absPath), nil
}

// Output format: <root> (module_name@version)
var rootModulePattern = regexp.MustCompile(`<root>\s+\(([^@)]+)`)

func parseRootModuleName(output string) string {
	if matches := rootModulePattern.FindStringSubmatch(output); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

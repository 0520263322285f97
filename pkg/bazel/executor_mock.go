package bazel

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockExecutor is a mock implementation of Executor for testing
type MockExecutor struct {
	MockOutput []byte
	MockError  error
	// Outputs maps "arg1 arg2 ..." of Run calls to their output; missing
	// commands fail.
	Outputs map[string]string

	mu      sync.Mutex
	Queries []string
}

func (m *MockExecutor) RunQuery(ctx context.Context, workspacePath string, query string) ([]byte, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.MockOutput, m.MockError
}

func (m *MockExecutor) Run(ctx context.Context, workspacePath string, args ...string) ([]byte, error) {
	if out, ok := m.Outputs[strings.Join(args, " ")]; ok {
		return []byte(out), nil
	}
	return nil, fmt.Errorf("mock: no output for bazel %s", strings.Join(args, " "))
}

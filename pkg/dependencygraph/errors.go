package dependencygraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// ErrCycle marks graph-integrity problems: Bazel is expected to reject
// cyclic graphs, so seeing one means the loaded targets are inconsistent.
var ErrCycle = errors.New("dependency cycle")

// CycleError describes the first cycle met while walking dependencies
type CycleError struct {
	Path []model.Label
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, l := range e.Path {
		parts[i] = string(l)
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

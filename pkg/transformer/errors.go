package transformer

import (
	"errors"
	"fmt"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// ErrTargetNotFound is returned for ids that are not part of the pass
var ErrTargetNotFound = errors.New("target not found")

// TargetNotFoundError names the id that could not be found
type TargetNotFoundError struct {
	ID model.Label
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("cannot find target for target id: %s", e.ID)
}

func (e *TargetNotFoundError) Is(target error) bool {
	return target == ErrTargetNotFound
}

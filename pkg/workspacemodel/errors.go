package workspacemodel

import (
	"errors"
	"fmt"

	"github.com/ritzau/bazel-sync/pkg/model"
)

var (
	// ErrModuleNotFound is returned when a diff names a module that does not exist
	ErrModuleNotFound = errors.New("module not found")
	// ErrStaleSnapshot is returned when a diff was opened against an older snapshot
	ErrStaleSnapshot = errors.New("diff was opened against a stale snapshot")
	// ErrUnknownTarget is returned when ownership would name a target outside the pass
	ErrUnknownTarget = errors.New("unknown target")
)

// UnknownTargetError names the ownership entry that broke the invariant
type UnknownTargetError struct {
	Path string
	ID   model.Label
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("file %s owned by unknown target %s", e.Path, e.ID)
}

func (e *UnknownTargetError) Is(target error) bool {
	return target == ErrUnknownTarget
}

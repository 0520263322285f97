// Package languages defines the per-language capability set used by sync to
// turn targets into modules, and the registry that selects a plugin for a
// target kind.
package languages

import (
	"github.com/ritzau/bazel-sync/pkg/model"
)

// WorkspaceContext is the configuration a plugin may consult in PrepareSync
type WorkspaceContext struct {
	Root             string
	JavaHomeOverride string // empty when not configured
}

// ModuleData is the language-specific part of a resolved module
type ModuleData interface {
	Language() string
}

// BuildTarget is the externally visible representation of a module. Plugins
// attach their metadata to Data; nil Data means the plugin had nothing to add.
type BuildTarget struct {
	ID       model.Label      `json:"id"`
	Kind     model.TargetKind `json:"kind"`
	Language string           `json:"language,omitempty"`
	Data     interface{}      `json:"data,omitempty"`
}

// ReverseDependencies is the part of the dependency graph plugins need to
// find the umbrella targets of a shard.
type ReverseDependencies interface {
	SourcesFromReverseDependencies(label model.Label) []*model.TargetInfo
}

// Plugin converts targets of one language into modules.
//
// PrepareSync runs once per pass before any other call. ResolveModule returns
// nil when the target carries no metadata for the language or lacks the
// artifacts a module needs; that is not an error.
type Plugin interface {
	Name() string
	Supports(kind model.TargetKind) bool
	Extensions() []string

	PrepareSync(targets []*model.TargetInfo, ws WorkspaceContext)
	ResolveModule(target *model.TargetInfo) ModuleData
	DependencySources(target *model.TargetInfo, graph ReverseDependencies) []string
	CalculateJvmPackagePrefix(source string) (string, bool)
	ApplyModuleData(data ModuleData, target *BuildTarget)
}

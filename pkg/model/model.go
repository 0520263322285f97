package model

import (
	"path"
	"strings"
)

// TargetKind represents the Bazel rule class of a target
type TargetKind string

const (
	TargetKindJavaLibrary   TargetKind = "java_library"
	TargetKindJavaBinary    TargetKind = "java_binary"
	TargetKindJavaTest      TargetKind = "java_test"
	TargetKindJavaImport    TargetKind = "java_import"
	TargetKindKotlinLibrary TargetKind = "kt_jvm_library"
	TargetKindKotlinBinary  TargetKind = "kt_jvm_binary"
	TargetKindKotlinTest    TargetKind = "kt_jvm_test"
)

// IsLibrary reports whether targets of this kind are consumed as libraries
// rather than compiled into a module of their own.
func (k TargetKind) IsLibrary() bool {
	return k == TargetKindJavaImport || strings.HasSuffix(string(k), "_import")
}

// IsExecutable reports whether the kind produces a runnable artifact
func (k TargetKind) IsExecutable() bool {
	s := string(k)
	return strings.HasSuffix(s, "_binary") || strings.HasSuffix(s, "_test")
}

// Label is a Bazel target label (e.g., "//core/util:util" or "@maven//:guava")
type Label string

// Repo returns the external repository name, or "" for the main repository
func (l Label) Repo() string {
	s := string(l)
	if !strings.HasPrefix(s, "@") {
		return ""
	}
	s = strings.TrimLeft(s, "@")
	if idx := strings.Index(s, "//"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// IsExternal returns true for labels that point outside the main repository
func (l Label) IsExternal() bool {
	return l.Repo() != ""
}

// Package returns the package path without the leading "//"
// e.g., "//core/util:util" -> "core/util"
func (l Label) Package() string {
	s := string(l)
	if idx := strings.Index(s, "//"); idx >= 0 {
		s = s[idx+2:]
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Name returns the target name, defaulting to the last package segment
// e.g., "//core/util" -> "util"
func (l Label) Name() string {
	s := string(l)
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		return s[idx+1:]
	}
	return path.Base(l.Package())
}

// Canonical returns the label in "//pkg:name" form
func (l Label) Canonical() Label {
	prefix := ""
	if repo := l.Repo(); repo != "" {
		prefix = "@" + repo
	}
	return Label(prefix + "//" + l.Package() + ":" + l.Name())
}

func (l Label) String() string {
	return string(l)
}

// FileLocation describes a file as reported by Bazel, relative to one of the
// roots the paths resolver knows about.
type FileLocation struct {
	RelativePath              string `json:"relativePath"`
	IsSource                  bool   `json:"isSource"`
	IsExternal                bool   `json:"isExternal,omitempty"`
	RootExecutionPathFragment string `json:"rootExecutionPathFragment,omitempty"` // e.g., "bazel-out/k8-fastbuild/bin"
}

// JvmOutputs groups the binary and source jars of one compilation output
type JvmOutputs struct {
	BinaryJars []FileLocation `json:"binaryJars"`
	SourceJars []FileLocation `json:"sourceJars,omitempty"`
}

// JvmTargetInfo carries the JVM-specific part of a target
type JvmTargetInfo struct {
	Jars        []JvmOutputs `json:"jars"`
	JavacOpts   []string     `json:"javacOpts,omitempty"`
	JvmFlags    []string     `json:"jvmFlags,omitempty"`
	MainClass   string       `json:"mainClass,omitempty"`
	Args        []string     `json:"args,omitempty"`
	RuntimeJdk  string       `json:"runtimeJdk,omitempty"` // java_runtime label, if any
	JavaVersion string       `json:"javaVersion,omitempty"`
}

// TargetInfo describes a Bazel target as loaded for one sync pass.
// It is immutable once the pass has started.
type TargetInfo struct {
	ID               Label          `json:"id"`
	Kind             TargetKind     `json:"kind"`
	Sources          []FileLocation `json:"sources,omitempty"`
	GeneratedSources []FileLocation `json:"generatedSources,omitempty"`
	Resources        []FileLocation `json:"resources,omitempty"`
	Dependencies     []Label        `json:"dependencies,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	JvmTargetInfo    *JvmTargetInfo `json:"jvmTargetInfo,omitempty"`
}

// HasJvmTargetInfo returns true if the target carries JVM metadata
func (t *TargetInfo) HasJvmTargetInfo() bool {
	return t.JvmTargetInfo != nil
}

// HasTag returns true if the target declares the given tag
func (t *TargetInfo) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// JavacOptions holds the javac flags Bazel reports for a target
type JavacOptions struct {
	Target  Label    `json:"target"`
	Options []string `json:"options"`
}

// JvmBinaryJars lists the runtime jars of an executable target
type JvmBinaryJars struct {
	Target Label    `json:"target"`
	Jars   []string `json:"jars"`
}

// Library is an external jar dependency surfaced as a project library
type Library struct {
	ID   Label    `json:"id"`
	Jars []string `json:"jars"`
}

// ProjectDetails is everything one sync pass loaded from Bazel
type ProjectDetails struct {
	Name                     string             `json:"name"`
	Targets                  []*TargetInfo      `json:"targets"`
	JavacOptions             []JavacOptions     `json:"javacOptions,omitempty"`
	JvmBinaryJars            []JvmBinaryJars    `json:"jvmBinaryJars,omitempty"`
	Libraries                []Library          `json:"libraries,omitempty"` // nil when libraries were not loaded this pass
	DefaultJdkName           string             `json:"defaultJdkName,omitempty"`
	TargetSourceDependencies map[Label][]string `json:"targetSourceDependencies,omitempty"`
}

// LibrariesLoaded distinguishes "no libraries" from "libraries not loaded"
func (p *ProjectDetails) LibrariesLoaded() bool {
	return p.Libraries != nil
}

// ModuleDetails is the full per-target view consumed by the project model writer
type ModuleDetails struct {
	Target              *TargetInfo     `json:"target"`
	JavacOptions        *JavacOptions   `json:"javacOptions,omitempty"`
	LibraryDependencies []Label         `json:"libraryDependencies"` // nil when libraries are not loaded
	ModuleDependencies  []Label         `json:"moduleDependencies"`
	DefaultJdkName      string          `json:"defaultJdkName,omitempty"`
	JvmBinaryJars       []JvmBinaryJars `json:"jvmBinaryJars,omitempty"`
	SourceDependencies  []string        `json:"sourceDependencies,omitempty"`
}

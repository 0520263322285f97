// Package java is the Java/Kotlin language plugin: it resolves JVM targets
// into modules, attributes umbrella sources to shards and reports the JDK
// and language level of each module.
package java

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ritzau/bazel-sync/pkg/languages"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/paths"
)

// Name is the language name reported on modules and build targets
const Name = "java"

// Options is the configuration data of the plugin
type Options struct {
	VersionFlags      []string // javac flags carrying the language level
	SourceExtensions  []string // extensions attributed to modules as sources
	ArchiveExtensions []string // generated outputs that are never navigable
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		VersionFlags:      []string{"-target", "--target", "--release"},
		SourceExtensions:  []string{".java", ".kt"},
		ArchiveExtensions: []string{".srcjar"},
	}
}

// Module is the Java-specific data of a resolved module
type Module struct {
	Jdk           *Jdk     `json:"jdk,omitempty"`
	RuntimeJdk    *Jdk     `json:"runtimeJdk,omitempty"`
	JavacOpts     []string `json:"javacOpts,omitempty"`
	JvmFlags      []string `json:"jvmFlags,omitempty"`
	MainOutput    string   `json:"mainOutput"`
	BinaryOutputs []string `json:"binaryOutputs"`
	MainClass     string   `json:"mainClass,omitempty"`
	Args          []string `json:"args,omitempty"`
}

// Language implements languages.ModuleData
func (m *Module) Language() string {
	return Name
}

// JvmBuildTarget is the metadata attached to build targets of Java modules
type JvmBuildTarget struct {
	JavaVersion string `json:"javaVersion"`
	JavaHome    string `json:"javaHome"`
}

// Plugin implements languages.Plugin for java_* and kt_jvm_* targets
type Plugin struct {
	paths *paths.Resolver
	jdks  *JdkResolver
	opts  Options

	mu  sync.RWMutex
	jdk *Jdk
}

var _ languages.Plugin = (*Plugin)(nil)

// New creates the plugin. Empty option lists fall back to the defaults.
func New(p *paths.Resolver, jdks *JdkResolver, opts Options) *Plugin {
	def := DefaultOptions()
	if len(opts.VersionFlags) == 0 {
		opts.VersionFlags = def.VersionFlags
	}
	if len(opts.SourceExtensions) == 0 {
		opts.SourceExtensions = def.SourceExtensions
	}
	if len(opts.ArchiveExtensions) == 0 {
		opts.ArchiveExtensions = def.ArchiveExtensions
	}
	return &Plugin{paths: p, jdks: jdks, opts: opts}
}

func (p *Plugin) Name() string {
	return Name
}

func (p *Plugin) Extensions() []string {
	return p.opts.SourceExtensions
}

func (p *Plugin) Supports(kind model.TargetKind) bool {
	k := string(kind)
	return strings.HasPrefix(k, "java_") || strings.HasPrefix(k, "kt_jvm_")
}

// PrepareSync selects the JDK for the pass: the configured override if any,
// otherwise the one inferred from targets.
func (p *Plugin) PrepareSync(targets []*model.TargetInfo, ws languages.WorkspaceContext) {
	var jdk *Jdk
	if ws.JavaHomeOverride != "" {
		jdk = &Jdk{Version: overrideVersion, JavaHome: ws.JavaHomeOverride}
	} else {
		jdk = p.jdks.Resolve(targets)
	}

	p.mu.Lock()
	p.jdk = jdk
	p.mu.Unlock()

	if jdk != nil {
		logging.Debug("java plugin prepared", "version", jdk.Version, "javaHome", jdk.JavaHome)
	} else {
		logging.Debug("java plugin prepared without a JDK")
	}
}

// Jdk returns the JDK selected by the last PrepareSync
func (p *Plugin) Jdk() *Jdk {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jdk
}

// ResolveModule returns nil for targets without JVM metadata or without a
// binary jar.
func (p *Plugin) ResolveModule(target *model.TargetInfo) languages.ModuleData {
	if !target.HasJvmTargetInfo() {
		return nil
	}
	info := target.JvmTargetInfo
	if len(info.Jars) == 0 || len(info.Jars[0].BinaryJars) == 0 {
		return nil
	}

	var outputs []string
	for _, jar := range info.Jars {
		outputs = append(outputs, p.paths.ResolveAll(jar.BinaryJars)...)
	}

	return &Module{
		Jdk:           p.Jdk(),
		RuntimeJdk:    p.jdks.ResolveJdk(target),
		JavacOpts:     info.JavacOpts,
		JvmFlags:      info.JvmFlags,
		MainOutput:    p.paths.Resolve(info.Jars[0].BinaryJars[0]),
		BinaryOutputs: outputs,
		MainClass:     strings.TrimSpace(info.MainClass),
		Args:          info.Args,
	}
}

// DependencySources returns the sources a shard gets from its umbrella
// targets: their declared and generated sources, minus archives, limited to
// recognised extensions and to files that exist.
func (p *Plugin) DependencySources(target *model.TargetInfo, graph languages.ReverseDependencies) []string {
	umbrellas := graph.SourcesFromReverseDependencies(target.ID)
	if len(umbrellas) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, u := range umbrellas {
		var candidates []string
		candidates = append(candidates, p.paths.ResolveAll(u.Sources)...)
		for _, gen := range u.GeneratedSources {
			if p.isArchive(gen.RelativePath) {
				continue
			}
			candidates = append(candidates, p.paths.Resolve(gen))
		}

		for _, path := range candidates {
			if seen[path] || !p.isSource(path) || !exists(path) {
				continue
			}
			seen[path] = true
		}
	}

	sources := make([]string, 0, len(seen))
	for path := range seen {
		sources = append(sources, path)
	}
	sort.Strings(sources)

	logging.Debug("umbrella sources resolved",
		"target", target.ID,
		"umbrellas", len(umbrellas),
		"sources", len(sources))
	return sources
}

// ApplyModuleData sets the JVM metadata of target. Data stays nil when no
// JDK home is known.
func (p *Plugin) ApplyModuleData(data languages.ModuleData, target *languages.BuildTarget) {
	m, ok := data.(*Module)
	if !ok {
		return
	}
	target.Language = Name
	if jvm := p.toJvmBuildTarget(m); jvm != nil {
		target.Data = jvm
	} else {
		target.Data = nil
	}
}

func (p *Plugin) toJvmBuildTarget(m *Module) *JvmBuildTarget {
	if m.Jdk == nil || m.Jdk.JavaHome == "" {
		return nil
	}
	version, ok := p.javaVersionFromJavacOpts(m.JavacOpts)
	if !ok {
		version = m.Jdk.Version
	}
	return &JvmBuildTarget{JavaVersion: version, JavaHome: m.Jdk.JavaHome}
}

// javaVersionFromJavacOpts returns the argument of the first option whose
// flag is a version flag. Options are either "--release 17" or a flag
// followed by its argument as the next option.
func (p *Plugin) javaVersionFromJavacOpts(opts []string) (string, bool) {
	for i, opt := range opts {
		flag, arg, inline := strings.Cut(opt, " ")
		if !p.isVersionFlag(flag) {
			continue
		}
		if inline {
			return strings.TrimSpace(arg), true
		}
		if i+1 < len(opts) {
			return strings.TrimSpace(opts[i+1]), true
		}
	}
	return "", false
}

func (p *Plugin) isVersionFlag(flag string) bool {
	for _, f := range p.opts.VersionFlags {
		if f == flag {
			return true
		}
	}
	return false
}

func (p *Plugin) isSource(path string) bool {
	for _, ext := range p.opts.SourceExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (p *Plugin) isArchive(path string) bool {
	for _, ext := range p.opts.ArchiveExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(filepath.Clean(path))
	return err == nil
}

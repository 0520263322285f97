package java

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/paths"
)

// Jdk is a resolved Java toolchain. JavaHome may be empty when only the
// version is known.
type Jdk struct {
	Version  string `json:"version"`
	JavaHome string `json:"javaHome,omitempty"`
}

// overrideVersion marks a JDK that came from configuration rather than targets
const overrideVersion = "javaHomeOverride"

var jdkVersionPattern = regexp.MustCompile(`(?:jdk|java)[_-]?(\d+)`)

// JdkResolver finds the JDKs targets run on from their java_runtime labels
type JdkResolver struct {
	paths *paths.Resolver
}

// NewJdkResolver creates a resolver that locates runtime repositories with p
func NewJdkResolver(p *paths.Resolver) *JdkResolver {
	return &JdkResolver{paths: p}
}

// ResolveJdk returns the runtime JDK of target, or nil if it declares none
func (r *JdkResolver) ResolveJdk(target *model.TargetInfo) *Jdk {
	if !target.HasJvmTargetInfo() || target.JvmTargetInfo.RuntimeJdk == "" {
		return nil
	}
	runtime := model.Label(target.JvmTargetInfo.RuntimeJdk)

	var home string
	if runtime.IsExternal() {
		home = r.paths.Resolve(model.FileLocation{RelativePath: runtime.Repo(), IsSource: true, IsExternal: true})
	} else {
		home = r.paths.Resolve(model.FileLocation{RelativePath: runtime.Package(), IsSource: true})
	}

	version := target.JvmTargetInfo.JavaVersion
	if version == "" {
		if m := jdkVersionPattern.FindStringSubmatch(string(runtime)); m != nil {
			version = m[1]
		}
	}

	return &Jdk{Version: version, JavaHome: home}
}

// Resolve picks the JDK used by most targets; ties go to the newer version.
// Returns nil when no target names a runtime.
func (r *JdkResolver) Resolve(targets []*model.TargetInfo) *Jdk {
	counts := make(map[Jdk]int)
	for _, t := range targets {
		if jdk := r.ResolveJdk(t); jdk != nil {
			counts[*jdk]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	candidates := make([]Jdk, 0, len(counts))
	for jdk := range counts {
		candidates = append(candidates, jdk)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if va, vb := versionNumber(a.Version), versionNumber(b.Version); va != vb {
			return va > vb
		}
		return a.JavaHome < b.JavaHome
	})

	best := candidates[0]
	return &best
}

func versionNumber(v string) int {
	// "1.8" style versions predate the single number scheme
	if len(v) > 2 && v[:2] == "1." {
		v = v[2:]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

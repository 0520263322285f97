package paths

import (
	"path/filepath"
	"testing"

	"github.com/ritzau/bazel-sync/pkg/model"
)

func TestResolve(t *testing.T) {
	r := NewResolver("/ws", "/out/execroot/_main", "/out")

	tests := []struct {
		name string
		loc  model.FileLocation
		want string
	}{
		{
			name: "workspace source",
			loc:  model.FileLocation{RelativePath: "core/A.java", IsSource: true},
			want: "/ws/core/A.java",
		},
		{
			name: "external source",
			loc:  model.FileLocation{RelativePath: "maven/B.java", IsSource: true, IsExternal: true},
			want: "/out/external/maven/B.java",
		},
		{
			name: "generated file",
			loc: model.FileLocation{
				RelativePath:              "core/gen.srcjar",
				RootExecutionPathFragment: "bazel-out/k8-fastbuild/bin",
			},
			want: "/out/execroot/_main/bazel-out/k8-fastbuild/bin/core/gen.srcjar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.loc); got != filepath.FromSlash(tt.want) {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewResolver_DefaultRoots(t *testing.T) {
	r := NewResolver("/home/me/project", "", "")

	got := r.Resolve(model.FileLocation{RelativePath: "x.jar", RootExecutionPathFragment: "bazel-out/bin"})
	want := filepath.FromSlash("/home/me/project/bazel-project/bazel-out/bin/x.jar")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestRelativize(t *testing.T) {
	r := NewResolver("/ws", "", "")

	if rel, ok := r.Relativize("/ws/core/A.java"); !ok || rel != "core/A.java" {
		t.Errorf("Relativize() = %q, %v", rel, ok)
	}
	if _, ok := r.Relativize("/elsewhere/A.java"); ok {
		t.Error("Relativize() should reject paths outside the workspace")
	}
}

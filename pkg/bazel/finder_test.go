package bazel

import (
	"reflect"
	"testing"
)

func TestPackageDirectoriesAndIsInPackage(t *testing.T) {
	dirs := packageDirectories([]string{"core/BUILD", "app/BUILD.bazel", "core/src/A.java", "README.md"})

	if !reflect.DeepEqual(dirs, map[string]bool{"core": true, "app": true}) {
		t.Fatalf("packageDirectories() = %v", dirs)
	}

	tests := []struct {
		dir  string
		want bool
	}{
		{"core", true},
		{"core/src/main", true},
		{"corelib", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isInPackage(tt.dir, dirs); got != tt.want {
			t.Errorf("isInPackage(%q) = %v, want %v", tt.dir, got, tt.want)
		}
	}
}

func TestFindUncoveredFiles(t *testing.T) {
	discovered := map[string]bool{"b/B.java": true, "a/A.java": true, "c/C.kt": true}
	owned := map[string]bool{"a/A.java": true}

	got := FindUncoveredFiles(discovered, func(f string) bool { return owned[f] })
	want := []string{"b/B.java", "c/C.kt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindUncoveredFiles() = %v, want %v", got, want)
	}
}

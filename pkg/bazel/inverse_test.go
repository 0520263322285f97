package bazel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ritzau/bazel-sync/pkg/model"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileLabel(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "core", "BUILD.bazel"))
	writeFile(t, filepath.Join(ws, "BUILD"))

	tests := []struct {
		rel  string
		want model.Label
	}{
		{"core/src/main/A.java", "//core:src/main/A.java"},
		{"core/B.java", "//core:B.java"},
		{"tools/C.java", "//:tools/C.java"},
		{"D.java", "//:D.java"},
	}
	for _, tt := range tests {
		got, err := FileLabel(ws, tt.rel)
		if err != nil {
			t.Errorf("FileLabel(%q) error = %v", tt.rel, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FileLabel(%q) = %s, want %s", tt.rel, got, tt.want)
		}
	}
}

func TestFileLabel_NoPackage(t *testing.T) {
	ws := t.TempDir()
	if _, err := FileLabel(ws, "src/A.java"); !errors.Is(err, ErrNoPackage) {
		t.Errorf("FileLabel() error = %v, want ErrNoPackage", err)
	}
}

func TestInverseSources(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "core", "BUILD"))

	mockExecutor := &MockExecutor{MockOutput: []byte(`
		<query version="2">
			<rule class="java_library" name="//core:shard_2">
				<list name="srcs"><label value="//core:src/A.java"/></list>
			</rule>
			<rule class="java_library" name="//core:core">
				<list name="srcs"><label value="//core:src/A.java"/><label value="//core:src/B.java"/></list>
			</rule>
			<rule class="java_library" name="//core:user">
				<list name="srcs"><label value="//core:src/B.java"/></list>
				<list name="deps"><label value="//core:src/A.java"/></list>
			</rule>
			<rule class="filegroup" name="//core:all_srcs">
				<list name="srcs"><label value="//core:src/A.java"/></list>
			</rule>
		</query>`)}

	got, err := InverseSources(context.Background(), mockExecutor, ws, "core/src/A.java")
	if err != nil {
		t.Fatalf("InverseSources() error = %v", err)
	}

	want := []model.Label{"//core:core", "//core:shard_2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("InverseSources() = %v, want %v", got, want)
	}
	if len(mockExecutor.Queries) != 1 || !strings.Contains(mockExecutor.Queries[0], "'//core:src/A.java'") {
		t.Errorf("queries = %v", mockExecutor.Queries)
	}
}

func TestInverseSources_QueryError(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "BUILD"))

	mockExecutor := &MockExecutor{MockError: errors.New("bazel not found")}
	if _, err := InverseSources(context.Background(), mockExecutor, ws, "A.java"); err == nil {
		t.Error("InverseSources() should return query errors")
	}
}

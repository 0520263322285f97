package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func isJava(path string) bool {
	return strings.HasSuffix(path, ".java")
}

func TestIsBuildFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"BUILD", true},
		{"BUILD.bazel", true},
		{"MODULE.bazel", true},
		{"defs.bzl", true},
		{"A.java", false},
		{"BUILD.txt", false},
	}
	for _, tt := range tests {
		if got := IsBuildFile(tt.name); got != tt.want {
			t.Errorf("IsBuildFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	ws := t.TempDir()
	src := filepath.Join(ws, "A.java")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(ws, "dir.java"), 0o755); err != nil {
		t.Fatal(err)
	}

	fw := &FileWatcher{workspace: ws, isSource: isJava}

	tests := []struct {
		name     string
		event    fsnotify.Event
		wantType ChangeType
		wantOK   bool
	}{
		{"build write", fsnotify.Event{Name: filepath.Join(ws, "BUILD"), Op: fsnotify.Write}, ChangeTypeBuildFile, true},
		{"build removed", fsnotify.Event{Name: filepath.Join(ws, "BUILD.bazel"), Op: fsnotify.Remove}, ChangeTypeBuildFile, true},
		{"build chmod", fsnotify.Event{Name: filepath.Join(ws, "BUILD"), Op: fsnotify.Chmod}, 0, false},
		{"source created", fsnotify.Event{Name: src, Op: fsnotify.Create}, ChangeTypeSourceFile, true},
		{"source written", fsnotify.Event{Name: src, Op: fsnotify.Write}, 0, false},
		{"directory created", fsnotify.Event{Name: filepath.Join(ws, "dir.java"), Op: fsnotify.Create}, 0, false},
		{"other file created", fsnotify.Event{Name: filepath.Join(ws, "notes.txt"), Op: fsnotify.Create}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotOK := fw.Classify(tt.event)
			if gotOK != tt.wantOK || (gotOK && gotType != tt.wantType) {
				t.Errorf("Classify() = %v, %v, want %v, %v", gotType, gotOK, tt.wantType, tt.wantOK)
			}
		})
	}
}

func TestAnalyzeChanges(t *testing.T) {
	sources := ChangeEvent{Type: ChangeTypeSourceFile, Paths: []string{"b/B.java", "a/A.java", "b/B.java"}}

	analysis := AnalyzeChanges(sources)
	if analysis.NeedFullSync {
		t.Error("source files alone should not need a full sync")
	}
	if len(analysis.NewSourceFiles) != 2 || analysis.NewSourceFiles[0] != "a/A.java" {
		t.Errorf("NewSourceFiles = %v, want [a/A.java b/B.java]", analysis.NewSourceFiles)
	}

	analysis = AnalyzeChanges(sources, ChangeEvent{Type: ChangeTypeBuildFile, Paths: []string{"a/BUILD"}})
	if !analysis.NeedFullSync {
		t.Error("BUILD change should need a full sync")
	}
	if len(analysis.NewSourceFiles) != 0 {
		t.Errorf("full sync covers new files, got %v", analysis.NewSourceFiles)
	}
	if len(analysis.ChangedFiles) != 4 {
		t.Errorf("ChangedFiles = %v", analysis.ChangedFiles)
	}
}

func TestDebouncer_MergesBursts(t *testing.T) {
	input := make(chan ChangeEvent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDebouncer(input, 50*time.Millisecond, time.Second)
	d.Start(ctx)

	input <- ChangeEvent{Type: ChangeTypeSourceFile, Paths: []string{"A.java"}}
	input <- ChangeEvent{Type: ChangeTypeBuildFile, Paths: []string{"BUILD"}}
	input <- ChangeEvent{Type: ChangeTypeSourceFile, Paths: []string{"B.java"}}

	first := receive(t, d.Output())
	if first.Type != ChangeTypeBuildFile {
		t.Errorf("first flushed event = %v, want build", first.Type)
	}
	second := receive(t, d.Output())
	if second.Type != ChangeTypeSourceFile || len(second.Paths) != 2 {
		t.Errorf("second flushed event = %+v, want both source files", second)
	}

	close(input)
	if _, ok := <-d.Output(); ok {
		t.Error("output should close when input closes")
	}
}

func TestDebouncer_MaxWait(t *testing.T) {
	input := make(chan ChangeEvent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDebouncer(input, time.Hour, 50*time.Millisecond)
	d.Start(ctx)

	input <- ChangeEvent{Type: ChangeTypeSourceFile, Paths: []string{"A.java"}}
	event := receive(t, d.Output())
	if len(event.Paths) != 1 {
		t.Errorf("event = %+v", event)
	}
}

func TestFileWatcher_ReportsNewSourceFile(t *testing.T) {
	ws := t.TempDir()
	if err := os.MkdirAll(filepath.Join(ws, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}

	fw, err := NewFileWatcher(ws, isJava)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	path := filepath.Join(ws, "lib", "New.java")
	if err := os.WriteFile(path, []byte("class New {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	event := receive(t, fw.Events())
	if event.Type != ChangeTypeSourceFile || len(event.Paths) == 0 || event.Paths[0] != path {
		t.Errorf("event = %+v, want source event for %s", event, path)
	}

	cancel()
	for range fw.Events() {
	}
}

func receive(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ChangeEvent{}
}

package projectsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/bazel-sync/pkg/bazel"
	"github.com/ritzau/bazel-sync/pkg/config"
	"github.com/ritzau/bazel-sync/pkg/languages/java"
	"github.com/ritzau/bazel-sync/pkg/model"
	"github.com/ritzau/bazel-sync/pkg/progress"
	"github.com/ritzau/bazel-sync/pkg/transformer"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

type fakeLoader struct {
	project *model.ProjectDetails
	err     error
	started chan struct{}
	release chan struct{}
}

func (l *fakeLoader) Load(ctx context.Context, cfg *config.Config) (*model.ProjectDetails, bazel.Info, error) {
	if l.started != nil {
		close(l.started)
		<-l.release
	}
	return l.project, bazel.Info{}, l.err
}

type recordingSink struct {
	mu      sync.Mutex
	updates []progress.Update
}

func (s *recordingSink) Report(u progress.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func jar(rel string) []model.JvmOutputs {
	return []model.JvmOutputs{{BinaryJars: []model.FileLocation{{RelativePath: rel, RootExecutionPathFragment: "bazel-out/bin"}}}}
}

func source(rel string) model.FileLocation {
	return model.FileLocation{RelativePath: rel, IsSource: true}
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixture: //app:app -> //lib:lib -> //lib:shard_1, plus an import and a
// target without JVM metadata
func fixture(t *testing.T) (string, *model.ProjectDetails) {
	ws := t.TempDir()
	writeSource(t, ws, "lib/A.java", "package com.example.lib;\n\nclass A {}\n")
	writeSource(t, ws, "lib/B.java", "package com.example.lib;\n")
	writeSource(t, ws, "app/Main.java", "package com.example.app;\n")

	project := &model.ProjectDetails{
		Name: "fixture",
		Targets: []*model.TargetInfo{
			{
				ID: "//app:app", Kind: model.TargetKindJavaBinary,
				Sources:       []model.FileLocation{source("app/Main.java")},
				Resources:     []model.FileLocation{source("app/app.properties")},
				Dependencies:  []model.Label{"//lib:lib", "@maven//:guava"},
				JvmTargetInfo: &model.JvmTargetInfo{Jars: jar("app/app.jar"), JavacOpts: []string{"--release 17"}},
			},
			{
				ID: "//lib:lib", Kind: model.TargetKindJavaLibrary,
				Sources:       []model.FileLocation{source("lib/A.java"), source("lib/B.java")},
				Dependencies:  []model.Label{"//lib:shard_1"},
				JvmTargetInfo: &model.JvmTargetInfo{Jars: jar("lib/liblib.jar")},
			},
			{
				ID: "//lib:shard_1", Kind: model.TargetKindJavaLibrary,
				JvmTargetInfo: &model.JvmTargetInfo{Jars: jar("lib/libshard_1.jar")},
			},
			{
				ID: "//third_party:jar", Kind: model.TargetKindJavaImport,
				JvmTargetInfo: &model.JvmTargetInfo{Jars: jar("third_party/x.jar")},
			},
			{ID: "//x:nojvm", Kind: model.TargetKindJavaLibrary},
		},
		Libraries: []model.Library{{ID: "@maven//:guava"}},
	}
	return ws, project
}

func newSyncer(ws string, loader Loader, opts Options) *ProjectSyncer {
	opts.Config = &config.Config{Workspace: ws, JavaHome: "/jdk", Concurrency: 4, Dummies: opts.Discover != nil}
	opts.Loader = loader
	if opts.Store == nil {
		opts.Store = workspacemodel.NewStore(nil)
	}
	return New(opts)
}

func TestSync_BuildsModules(t *testing.T) {
	ws, project := fixture(t)
	sink := &recordingSink{}
	s := newSyncer(ws, &fakeLoader{project: project}, Options{Sink: sink})

	result, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Targets)
	assert.Equal(t, 3, result.Modules)
	assert.Equal(t, []model.Label{"//third_party:jar", "//x:nojvm"}, result.Skipped)
	assert.Empty(t, result.Cycles)
	assert.Equal(t, uint64(1), result.Version)
	assert.False(t, s.Status().InProgress())

	snap := s.Store().CurrentSnapshot()
	names := make([]string, 0)
	for _, m := range snap.Modules() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"app.app", "lib.lib", "lib.shard_1"}, names)

	app, ok := snap.Module("app.app")
	require.True(t, ok)
	assert.Equal(t, workspacemodel.BazelEntitySource, app.Source)
	assert.Equal(t, []string{"lib.lib", "lib.shard_1"}, app.ModuleDependencies)
	assert.Equal(t, []model.Label{"@maven//:guava"}, app.LibraryDependencies)
	assert.Equal(t, []workspacemodel.ContentRoot{
		{Path: "app/Main.java", Kind: workspacemodel.ContentSource, PackagePrefix: "com.example.app"},
		{Path: "app/app.properties", Kind: workspacemodel.ContentResource},
	}, app.ContentRoots)

	require.NotNil(t, app.BuildTarget)
	assert.Equal(t, java.Name, app.BuildTarget.Language)
	assert.Equal(t, &java.JvmBuildTarget{JavaVersion: "17", JavaHome: "/jdk"}, app.BuildTarget.Data)

	// an ordinary library keeps its own sources; its consumer is no umbrella
	lib, ok := snap.Module("lib.lib")
	require.True(t, ok)
	assert.Equal(t, []workspacemodel.ContentRoot{
		{Path: "lib/A.java", Kind: workspacemodel.ContentSource, PackagePrefix: "com.example.lib"},
		{Path: "lib/B.java", Kind: workspacemodel.ContentSource, PackagePrefix: "com.example.lib"},
	}, lib.ContentRoots)
	mainModules := snap.ModulesForFile("app/Main.java")
	require.Len(t, mainModules, 1)
	assert.Equal(t, "app.app", mainModules[0].Name)

	// the shard has no sources of its own and borrows its umbrella's
	shard, ok := snap.Module("lib.shard_1")
	require.True(t, ok)
	assert.Equal(t, []workspacemodel.ContentRoot{
		{Path: "lib/A.java", Kind: workspacemodel.ContentSource, PackagePrefix: "com.example.lib"},
		{Path: "lib/B.java", Kind: workspacemodel.ContentSource, PackagePrefix: "com.example.lib"},
	}, shard.ContentRoots)

	assert.Equal(t, []model.Label{"//lib:lib"}, snap.Owners("lib/A.java"))
	assert.Equal(t, []model.Label{"//app:app"}, snap.Owners("app/Main.java"))
	assert.True(t, snap.KnowsTarget("//x:nojvm"))

	require.NotEmpty(t, sink.updates)
	last := sink.updates[len(sink.updates)-1]
	assert.Equal(t, progress.StateFinished, last.State)
	assert.Equal(t, 100, last.Fraction)
	for i := 1; i < len(sink.updates); i++ {
		assert.GreaterOrEqual(t, sink.updates[i].Fraction, sink.updates[i-1].Fraction)
	}
}

func TestSync_LibrariesNotLoaded(t *testing.T) {
	ws, project := fixture(t)
	project.Libraries = nil
	s := newSyncer(ws, &fakeLoader{project: project}, Options{})

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	app, _ := s.Store().CurrentSnapshot().Module("app.app")
	assert.Nil(t, app.LibraryDependencies)
}

func TestSync_LoadFailureLeavesModelUntouched(t *testing.T) {
	store := workspacemodel.NewStore(nil)
	s := newSyncer(t.TempDir(), &fakeLoader{err: errors.New("bazel crashed")}, Options{Store: store})

	_, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(0), store.CurrentSnapshot().Version())
	assert.Nil(t, s.Current())
	assert.False(t, s.Status().InProgress())
}

func TestSync_RejectsConcurrentPass(t *testing.T) {
	ws, project := fixture(t)
	loader := &fakeLoader{project: project, started: make(chan struct{}), release: make(chan struct{})}
	s := newSyncer(ws, loader, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background())
		done <- err
	}()

	<-loader.started
	assert.True(t, s.Status().InProgress())
	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(loader.release)
	require.NoError(t, <-done)
	assert.False(t, s.Status().InProgress())
}

func TestSync_DummyModules(t *testing.T) {
	ws, project := fixture(t)
	discover := func(ctx context.Context, root string, isSource func(string) bool) (map[string]bool, error) {
		return map[string]bool{"lib/A.java": true, "tools/T.java": true, "tools/U.kt": true, "Root.java": true}, nil
	}
	s := newSyncer(ws, &fakeLoader{project: project}, Options{Discover: discover})

	result, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Root.java", "tools/T.java", "tools/U.kt"}, result.Uncovered)
	assert.Equal(t, 2, result.DummyModules)

	snap := s.Store().CurrentSnapshot()
	tools, ok := snap.Module("_dummy.tools")
	require.True(t, ok)
	assert.True(t, tools.IsDummy())
	assert.Len(t, tools.ContentRoots, 2)

	root, ok := snap.Module("_dummy")
	require.True(t, ok)
	assert.Equal(t, "Root.java", root.ContentRoots[0].Path)
}

func TestSync_ReportsCycles(t *testing.T) {
	ws := t.TempDir()
	project := &model.ProjectDetails{Targets: []*model.TargetInfo{
		{ID: "//a:a", Kind: model.TargetKindJavaLibrary, Dependencies: []model.Label{"//b:b"}, JvmTargetInfo: &model.JvmTargetInfo{Jars: jar("a/liba.jar")}},
		{ID: "//b:b", Kind: model.TargetKindJavaLibrary, Dependencies: []model.Label{"//a:a"}, JvmTargetInfo: &model.JvmTargetInfo{Jars: jar("b/libb.jar")}},
	}}
	s := newSyncer(ws, &fakeLoader{project: project}, Options{})

	result, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]model.Label{{"//a:a", "//b:b"}}, result.Cycles)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, 2, result.Modules)
}

func TestResolveModules(t *testing.T) {
	ws, project := fixture(t)
	s := newSyncer(ws, &fakeLoader{project: project}, Options{})

	_, err := s.ResolveModules(context.Background(), []model.Label{"//lib:lib"})
	assert.ErrorIs(t, err, ErrNoSyncContext)

	_, err = s.Sync(context.Background())
	require.NoError(t, err)

	modules, err := s.ResolveModules(context.Background(), []model.Label{"//lib:lib", "//third_party:jar"})
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "lib.lib", modules[0].Name)

	_, err = s.ResolveModules(context.Background(), []model.Label{"//new:target"})
	assert.ErrorIs(t, err, transformer.ErrTargetNotFound)
}

func TestSyncStatus(t *testing.T) {
	var status SyncStatus

	assert.False(t, status.InProgress())
	assert.True(t, status.TryStart())
	assert.False(t, status.TryStart())
	assert.True(t, status.InProgress())
	status.Finish()
	assert.False(t, status.InProgress())
}

func TestSyncStatus_WhileIdle(t *testing.T) {
	var status SyncStatus

	ran := false
	require.NoError(t, status.WhileIdle(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	require.True(t, status.TryStart())
	err := status.WhileIdle(func() error {
		t.Fatal("must not run during a sync")
		return nil
	})
	assert.ErrorIs(t, err, ErrSyncInProgress)
	status.Finish()

	failed := errors.New("commit failed")
	assert.ErrorIs(t, status.WhileIdle(func() error { return failed }), failed)
}

// Command bazel-sync imports a Bazel workspace into a project model and keeps
// it current.
//
//	bazel-sync [flags] [sync]          run a full sync and print a report
//	bazel-sync [flags] add-file <path> add one new source file to its modules
//	bazel-sync [flags] uncovered       list source files no module includes
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/bazel-sync/pkg/bazel"
	"github.com/ritzau/bazel-sync/pkg/config"
	"github.com/ritzau/bazel-sync/pkg/filesync"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/output"
	"github.com/ritzau/bazel-sync/pkg/paths"
	"github.com/ritzau/bazel-sync/pkg/progress"
	"github.com/ritzau/bazel-sync/pkg/projectsync"
	"github.com/ritzau/bazel-sync/pkg/pubsub"
	"github.com/ritzau/bazel-sync/pkg/watcher"
	"github.com/ritzau/bazel-sync/pkg/web"
	"github.com/ritzau/bazel-sync/pkg/workspacemodel"
)

// Watch mode batching
const (
	quietPeriod = 500 * time.Millisecond
	maxWait     = 5 * time.Second
)

type app struct {
	cfg         *config.Config
	store       *workspacemodel.Store
	syncer      *projectsync.ProjectSyncer
	coordinator *filesync.Coordinator
	publisher   *pubsub.Hub
	watchSource func(string) bool
}

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lvl, err := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logging.SetLevel(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags.Args()); err != nil {
		logging.Error("bazel-sync failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	root, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}
	cfg.Workspace = root

	a, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	command := "sync"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "sync":
		if cfg.WebMode || cfg.Watch {
			return a.serve(ctx)
		}
		result, err := a.syncer.Sync(ctx)
		if err != nil {
			return err
		}
		output.PrintSyncReport(os.Stdout, result)
		return nil

	case "add-file":
		if len(args) != 2 {
			return errors.New("usage: bazel-sync add-file <path>")
		}
		result, err := a.coordinator.AddFile(ctx, args[1])
		if err != nil {
			return err
		}
		output.PrintAddFileResult(os.Stdout, result)
		return nil

	case "uncovered":
		return a.uncovered(ctx)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	cleanup := func() {}

	var persister workspacemodel.Persister
	if cfg.DBPath != "" {
		db, err := workspacemodel.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening project model: %w", err)
		}
		persister = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				logging.Warn("closing project model", "error", err)
			}
		}
	}

	store := workspacemodel.NewStore(persister)
	if persister != nil {
		if err := store.Restore(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("restoring project model: %w", err)
		}
		logging.Info("restored project model", "path", cfg.DBPath, "version", store.CurrentSnapshot().Version())
	}

	a := &app{cfg: cfg, store: store}

	var sink progress.Sink = progress.LogSink{}
	var publisher pubsub.Publisher
	if cfg.WebMode {
		a.publisher = pubsub.NewHub()
		publisher = a.publisher
		sink = progress.MultiSink{progress.LogSink{}, progress.PubSubSink{Publisher: a.publisher}}
	}

	executor := bazel.NewExecutor()
	status := &projectsync.SyncStatus{}

	a.syncer = projectsync.New(projectsync.Options{
		Config:    cfg,
		Loader:    bazel.NewTargetSource(executor),
		Store:     store,
		Status:    status,
		Registry:  projectsync.JavaRegistry(cfg),
		Sink:      sink,
		Publisher: publisher,
	})

	// Outside a pass the registry only classifies files, so the resolver
	// falls back to the default roots
	registry := projectsync.JavaRegistry(cfg)(paths.NewResolver(cfg.Workspace, cfg.ExecRoot, cfg.OutputBase))
	a.watchSource = registry.IsSourceFile

	a.coordinator = filesync.New(filesync.Options{
		Root:      cfg.Workspace,
		Registry:  registry,
		Querier:   filesync.BazelQuerier{Executor: executor, Root: cfg.Workspace},
		Resolver:  a.syncer,
		Store:     store,
		Status:    status,
		Sink:      sink,
		Publisher: publisher,
	})

	return a, cleanup, nil
}

// serve runs an initial sync and then keeps the model current until ctx is
// done
func (a *app) serve(ctx context.Context) error {
	errc := make(chan error, 2)

	if a.cfg.WebMode {
		server := web.NewServer(a.store, a.syncer, a.coordinator, a.publisher)
		go func() {
			errc <- server.Start(ctx, a.cfg.Port)
		}()
		url := fmt.Sprintf("http://localhost:%d", a.cfg.Port)
		logging.Info("serving project model", "url", url)
		openBrowser(url)
	}

	go func() {
		if _, err := a.syncer.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("initial sync failed", "error", err)
		}
	}()

	if a.cfg.Watch {
		fw, err := watcher.NewFileWatcher(a.cfg.Workspace, a.watchSource)
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		if err := fw.Start(ctx); err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		debouncer := watcher.NewDebouncer(fw.Events(), quietPeriod, maxWait)
		debouncer.Start(ctx)
		go watcher.Handle(ctx, debouncer.Output(), a.syncer, a.coordinator)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

func (a *app) uncovered(ctx context.Context) error {
	if _, err := a.syncer.Sync(ctx); err != nil {
		return err
	}

	discovered, err := bazel.DiscoverSourceFiles(ctx, a.cfg.Workspace, a.watchSource)
	if err != nil {
		return fmt.Errorf("finding source files: %w", err)
	}

	snap := a.store.CurrentSnapshot()
	uncovered := bazel.FindUncoveredFiles(discovered, func(file string) bool {
		return len(snap.Owners(file)) > 0
	})

	output.PrintCoverageReport(os.Stdout, a.cfg.Workspace, len(discovered), uncovered)
	return nil
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		logging.Debug("cannot open browser", "os", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		logging.Debug("failed to open browser", "error", err)
	}
}

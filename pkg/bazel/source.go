package bazel

import (
	"context"
	"log/slog"

	"github.com/ritzau/bazel-sync/pkg/config"
	"github.com/ritzau/bazel-sync/pkg/logging"
	"github.com/ritzau/bazel-sync/pkg/model"
)

// TargetSource loads the targets of a workspace for one sync pass
type TargetSource struct {
	executor Executor
	logger   *slog.Logger
}

// NewTargetSource creates a target source running commands with executor
func NewTargetSource(executor Executor) *TargetSource {
	return &TargetSource{
		executor: executor,
		logger:   logging.New("source.bazel"),
	}
}

// Executor returns the executor the source runs Bazel with
func (s *TargetSource) Executor() Executor {
	return s.executor
}

// Load queries every target of the workspace. Output locations come from
// `bazel info` unless configured; failing to get them is not fatal.
func (s *TargetSource) Load(ctx context.Context, cfg *config.Config) (*model.ProjectDetails, Info, error) {
	s.logger.Info("Starting Bazel query", "workspace", cfg.Workspace)

	info, err := QueryInfo(ctx, s.executor, cfg.Workspace)
	if err != nil {
		s.logger.Debug("bazel info unavailable, using defaults", "error", err)
	}
	if cfg.ExecRoot != "" {
		info.ExecutionRoot = cfg.ExecRoot
	}
	if cfg.OutputBase != "" {
		info.OutputBase = cfg.OutputBase
	}

	parser := NewParser()
	if info.BinFragment != "" {
		parser.BinFragment = info.BinFragment
	}
	parser.RuntimeJdk = cfg.Java.Runtime

	output, err := s.executor.RunQuery(ctx, cfg.Workspace, "//...")
	if err != nil {
		return nil, info, err
	}
	s.logger.Debug("Bazel query complete", "bytes", len(output))

	parsed, err := parser.ParseQueryOutput(output)
	if err != nil {
		return nil, info, err
	}

	name, err := GetWorkspaceName(ctx, s.executor, cfg.Workspace)
	if err != nil {
		return nil, info, err
	}

	project := &model.ProjectDetails{
		Name:                     name,
		Targets:                  parsed.Targets,
		TargetSourceDependencies: parsed.SourceDependencies,
	}
	if cfg.Libraries {
		project.Libraries = parsed.Libraries
		if project.Libraries == nil {
			project.Libraries = []model.Library{}
		}
	}
	if cfg.Java.Runtime != "" {
		runtime := model.Label(cfg.Java.Runtime)
		project.DefaultJdkName = runtime.Repo()
		if project.DefaultJdkName == "" {
			project.DefaultJdkName = runtime.Name()
		}
	}
	for _, t := range parsed.Targets {
		if t.JvmTargetInfo != nil && len(t.JvmTargetInfo.JavacOpts) > 0 {
			project.JavacOptions = append(project.JavacOptions, model.JavacOptions{Target: t.ID, Options: t.JvmTargetInfo.JavacOpts})
		}
		if t.Kind.IsExecutable() && t.JvmTargetInfo != nil {
			var jars []string
			for _, out := range t.JvmTargetInfo.Jars {
				for _, jar := range out.BinaryJars {
					jars = append(jars, jar.RelativePath)
				}
			}
			project.JvmBinaryJars = append(project.JvmBinaryJars, model.JvmBinaryJars{Target: t.ID, Jars: jars})
		}
	}

	s.logger.Info("Bazel query loaded",
		"workspace", name,
		"targets", len(project.Targets),
		"libraries", len(parsed.Libraries))
	return project, info, nil
}

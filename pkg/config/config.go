package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileName is the optional config file looked up in the working directory
const FileName = "bazel-sync.toml"

// EnvPrefix prefixes environment overrides, e.g. BAZEL_SYNC_JAVA_HOME
const EnvPrefix = "BAZEL_SYNC_"

// JavaConfig holds the configuration data of the Java language plugin
type JavaConfig struct {
	VersionFlags     []string `koanf:"version_flags"`
	SourceExtensions []string `koanf:"source_extensions"`
	Runtime          string   `koanf:"runtime"` // java_runtime label, e.g. @remotejdk17_linux//:jdk
}

// Config holds all configuration for the application
type Config struct {
	Workspace   string     `koanf:"workspace"`
	WebMode     bool       `koanf:"web"`
	Port        int        `koanf:"port"`
	Watch       bool       `koanf:"watch"`
	Verbosity   string     `koanf:"verbosity"`
	VerboseCnt  int        `koanf:"verbose"`
	JavaHome    string     `koanf:"java_home"` // JDK home override, empty = infer from targets
	DBPath      string     `koanf:"db"`        // SQLite file for the project model, empty = memory only
	Concurrency int        `koanf:"concurrency"`
	Libraries   bool       `koanf:"libraries"`
	OutputBase  string     `koanf:"output_base"`
	ExecRoot    string     `koanf:"execroot"`
	Dummies     bool       `koanf:"dummy_modules"` // collect files no target covers into placeholder modules
	Java        JavaConfig `koanf:"java"`
}

// Defaults returns the built-in configuration values
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace":     ".",
		"web":           false,
		"port":          8080,
		"watch":         false,
		"verbosity":     "",
		"verbose":       0,
		"java_home":     "",
		"db":            "",
		"concurrency":   8,
		"libraries":     true,
		"output_base":   "",
		"execroot":      "",
		"dummy_modules": false,
		"java": map[string]interface{}{
			"version_flags":     []string{"-target", "--target", "--release"},
			"source_extensions": []string{".java", ".kt"},
			"runtime":           "",
		},
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(f, FileName)
}

func load(f *pflag.FlagSet, configFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The config file is optional
	_ = k.Load(file.Provider(configFile), toml.Parser())

	// BAZEL_SYNC_JAVA_HOME -> java_home, BAZEL_SYNC_JAVA__VERSION_FLAGS -> java.version_flags
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &cfg, nil
}

// Flags registers the command line flags understood by Load
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("bazel-sync", pflag.ContinueOnError)
	f.String("workspace", ".", "Path to the Bazel workspace root")
	f.Bool("web", false, "Serve the project model over HTTP")
	f.Int("port", 8080, "Port for the web server (only used with --web)")
	f.Bool("watch", false, "Watch the workspace and keep the project model current")
	f.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	f.String("java_home", "", "JDK home to use instead of the one inferred from targets")
	f.String("db", "", "SQLite file to persist the project model in")
	f.Int("concurrency", 8, "Number of targets resolved in parallel during sync")
	f.Bool("libraries", true, "Load library metadata during sync")
	f.Bool("dummy_modules", false, "Attach files no target covers to placeholder modules")
	f.String("java.runtime", "", "java_runtime label the JVM targets run on")
	return f
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

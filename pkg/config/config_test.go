package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(nil, filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Workspace != "." {
		t.Errorf("Workspace = %q, want %q", cfg.Workspace, ".")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !cfg.Libraries {
		t.Error("Libraries should default to true")
	}
	if cfg.JavaHome != "" {
		t.Errorf("JavaHome = %q, want empty", cfg.JavaHome)
	}
	wantFlags := []string{"-target", "--target", "--release"}
	if !reflect.DeepEqual(cfg.Java.VersionFlags, wantFlags) {
		t.Errorf("Java.VersionFlags = %v, want %v", cfg.Java.VersionFlags, wantFlags)
	}
}

func TestLoad_FileEnvAndFlagPriority(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bazel-sync.toml")
	content := `
workspace = "/from/file"
port = 9000
java_home = "/jdk/file"

[java]
source_extensions = [".java"]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BAZEL_SYNC_PORT", "9100")
	t.Setenv("BAZEL_SYNC_JAVA_HOME", "/jdk/env")

	flags := Flags()
	if err := flags.Parse([]string{"--java_home", "/jdk/flag", "-vv"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(flags, configPath)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Workspace != "/from/file" {
		t.Errorf("Workspace = %q, want value from file", cfg.Workspace)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Port)
	}
	if cfg.JavaHome != "/jdk/flag" {
		t.Errorf("JavaHome = %q, want flag override", cfg.JavaHome)
	}
	if cfg.VerboseCnt != 2 {
		t.Errorf("VerboseCnt = %d, want 2", cfg.VerboseCnt)
	}
	if !reflect.DeepEqual(cfg.Java.SourceExtensions, []string{".java"}) {
		t.Errorf("Java.SourceExtensions = %v, want [.java]", cfg.Java.SourceExtensions)
	}
}

func TestLoad_ClampsConcurrency(t *testing.T) {
	t.Setenv("BAZEL_SYNC_CONCURRENCY", "0")

	cfg, err := load(nil, filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
}

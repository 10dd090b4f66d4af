package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeConfig(t, `
[vm]
engine = "wasm"
max_stack = 500
timeout = "30s"

[ext.str]
env = "production"

[ext.code]
replicas = "2 + 1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VM.MaxStack != 500 {
		t.Errorf("MaxStack = %d", cfg.VM.MaxStack)
	}
	if cfg.VM.Timeout.Duration() != 30*time.Second {
		t.Errorf("Timeout = %s", cfg.VM.Timeout)
	}
	if cfg.Ext.Str["env"] != "production" {
		t.Errorf("Ext.Str = %v", cfg.Ext.Str)
	}
	if cfg.Ext.Code["replicas"] != "2 + 1" {
		t.Errorf("Ext.Code = %v", cfg.Ext.Code)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadMissingImplicitFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VM.Engine != "wasm" {
		t.Errorf("default engine = %q", cfg.VM.Engine)
	}
	if cfg.VM.Timeout != 0 {
		t.Errorf("default timeout = %s", cfg.VM.Timeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, `
[vm]
max_trace = 5
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VM.MaxTrace != 5 {
		t.Errorf("MaxTrace = %d", cfg.VM.MaxTrace)
	}
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	path := writeConfig(t, `
[vm]
engine = "jvm"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown engine") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[vm]
timeout = "fast"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duration parse error")
	}
}

package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func captureGenerate(t *testing.T) **GenerateConfig {
	t.Helper()
	var captured *GenerateConfig
	generateRunner = func(ctx context.Context, cfg *GenerateConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { generateRunner = runGenerate })
	return &captured
}

func TestGenerateConfigFromFlags(t *testing.T) {
	captured := captureGenerate(t)

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--verbose",
		"generate", "netbox.local",
		"--https",
		"--port", "443",
		"--out", "./build",
		"--template", "custom.tmpl",
		"--save-spec", "/tmp/spec.json",
		"--include-tags", "dcim,ipam",
		"--exclude-tags", "secrets",
		"--methods", "GET, post",
		"--paths", "^/dcim/",
		"--runner-type", "python-script",
		"--entry-point", "run.py",
		"--no-wrapper",
		"--dry-run",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}

	if cfg.Host != "netbox.local" || !cfg.HTTPS || cfg.Port != 443 || cfg.File {
		t.Errorf("source mismatch: %+v", cfg)
	}
	if got, want := cfg.specInput(), "https://netbox.local:443/api/swagger.json"; got != want {
		t.Errorf("spec input: want %q got %q", want, got)
	}
	if cfg.Out != "./build" || cfg.Template != "custom.tmpl" || cfg.SaveSpec != "/tmp/spec.json" {
		t.Errorf("paths mismatch: %+v", cfg)
	}
	if want := []string{"dcim", "ipam"}; !equalStringSlices(cfg.IncludeTags, want) {
		t.Errorf("include tags mismatch: got %v", cfg.IncludeTags)
	}
	if want := []string{"secrets"}; !equalStringSlices(cfg.ExcludeTags, want) {
		t.Errorf("exclude tags mismatch: got %v", cfg.ExcludeTags)
	}
	if want := []string{"get", "post"}; !equalStringSlices(cfg.Methods, want) {
		t.Errorf("methods mismatch: got %v", cfg.Methods)
	}
	if want := []string{"^/dcim/"}; !equalStringSlices(cfg.Paths, want) {
		t.Errorf("paths mismatch: got %v", cfg.Paths)
	}
	if cfg.RunnerType != "python-script" || cfg.EntryPoint != "run.py" || !cfg.NoWrapper {
		t.Errorf("runner mismatch: %+v", cfg)
	}
	if !cfg.DryRun || !cfg.Verbose {
		t.Errorf("expected dry-run and verbose")
	}
}

func TestGenerateConfigDefaults(t *testing.T) {
	captured := captureGenerate(t)
	t.Setenv(ConfigEnvVar, "")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"generate", "netbox.local"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg.Port != 8000 || cfg.Out != "actions" || cfg.HTTPS {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if got, want := cfg.specInput(), "http://netbox.local:8000/api/swagger.json"; got != want {
		t.Errorf("spec input: want %q got %q", want, got)
	}
	if !cfg.Pack.SSLVerify {
		t.Errorf("ssl_verify should default to true")
	}
}

func TestGenerateConfigPrecedence(t *testing.T) {
	captured := captureGenerate(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := strings.TrimSpace(`hostname: netbox.internal
api_token: abc
ssl_verify: false
timeout: 15
https: true
port: 8443
out: from-config
include_tags:
  - cfgFoo
excludeTags: cfgBar
methods: get
dry_run: true
verbose: true
`) + "\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--config", configPath,
		"generate",
		"--include-tags", "flagTag",
		"--dry-run=false",
		"--port", "9443",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}

	if cfg.Host != "netbox.internal" {
		t.Errorf("host should fall back to hostname, got %q", cfg.Host)
	}
	if !cfg.HTTPS || cfg.Port != 9443 {
		t.Errorf("https/port mismatch: %v %d", cfg.HTTPS, cfg.Port)
	}
	if cfg.Out != "from-config" {
		t.Errorf("out: want from-config got %q", cfg.Out)
	}
	if want := []string{"flagTag"}; !equalStringSlices(cfg.IncludeTags, want) {
		t.Errorf("include tags: want %v got %v", want, cfg.IncludeTags)
	}
	if want := []string{"cfgBar"}; !equalStringSlices(cfg.ExcludeTags, want) {
		t.Errorf("exclude tags: want %v got %v", want, cfg.ExcludeTags)
	}
	if want := []string{"get"}; !equalStringSlices(cfg.Methods, want) {
		t.Errorf("methods: want %v got %v", want, cfg.Methods)
	}
	if cfg.DryRun {
		t.Errorf("expected dry-run false after flag override")
	}
	if !cfg.Verbose {
		t.Errorf("expected verbose true from config file")
	}
	if cfg.Pack.SSLVerify || cfg.Pack.APIToken != "abc" || cfg.Pack.Timeout != 15*time.Second {
		t.Errorf("pack settings mismatch: %+v", cfg.Pack)
	}
	if cfg.ConfigPath != configPath {
		t.Errorf("config path mismatch: got %q", cfg.ConfigPath)
	}
}

func TestGenerateConfigFromEnv(t *testing.T) {
	captured := captureGenerate(t)

	configPath := filepath.Join(t.TempDir(), "netbox2st2.yaml")
	if err := os.WriteFile(configPath, []byte("host: ./swagger.json\nfile: true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigEnvVar, configPath)

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"generate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg.ConfigPath != configPath || !cfg.File || cfg.specInput() != "./swagger.json" {
		t.Errorf("env config not applied: %+v", cfg)
	}
}

func TestGenerateConfigValidation(t *testing.T) {
	captureGenerate(t)
	t.Setenv(ConfigEnvVar, "")

	cases := map[string][]string{
		"missing host":   {"generate"},
		"bad method":     {"generate", "netbox", "--methods", "options"},
		"bad port":       {"generate", "netbox", "--port", "0"},
		"tag overlap":    {"generate", "netbox", "--include-tags", "dcim", "--exclude-tags", "dcim"},
		"save with file": {"generate", "spec.json", "--file", "--save-spec", "out.json"},
	}
	for name, args := range cases {
		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs(args)
		err := root.Execute()
		if err == nil {
			t.Errorf("%s: expected an error", name)
			continue
		}
		if !errors.Is(err, ErrUsage) {
			t.Errorf("%s: expected usage error, got %v", name, err)
		}
	}
}

func TestGenerateConfigUnknownKey(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte("unknown: value\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--config", configPath,
		"generate", "netbox",
	})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/basket/scriptbot/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_TOKEN", "SCRIPTBOT_ALLOWED_IDS", "SCRIPTBOT_SCRIPTS_DIR",
		"SCRIPTBOT_INTERPRETER", "SCRIPTBOT_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	if err := os.WriteFile(config.ConfigPath(home), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_FromScriptbotHome(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeConfig(t, home, `
log_level: debug
telegram:
  token: "123456:abcdef"
  allowed_ids: [42, 43]
scripts:
  dir: jobs
  extension: .sh
  interpreter: bash
  watch: false
processes:
  reconcile_schedule: "*/5 * * * *"
  terminate_on_shutdown: true
`)
	t.Setenv("SCRIPTBOT_HOME", home)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HomeDir != home {
		t.Fatalf("HomeDir = %q, want %q", cfg.HomeDir, home)
	}
	if diff := cmp.Diff([]int64{42, 43}, cfg.Telegram.AllowedIDs); diff != "" {
		t.Fatalf("allowed ids mismatch (-want +got):\n%s", diff)
	}
	want := config.ScriptsConfig{
		Dir:         filepath.Join(home, "jobs"),
		Extension:   ".sh",
		Interpreter: "bash",
		Watch:       false,
	}
	if diff := cmp.Diff(want, cfg.Scripts); diff != "" {
		t.Fatalf("scripts mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Processes.TerminateOnShutdown || cfg.Processes.ReconcileSchedule != "*/5 * * * *" {
		t.Fatalf("unexpected processes config: %+v", cfg.Processes)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()

	cfg, err := config.LoadFrom(home)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.FileMissing {
		t.Fatal("expected FileMissing when config.yaml is absent")
	}
	want := config.ScriptsConfig{
		Dir:         filepath.Join(home, "scripts"),
		Extension:   ".py",
		Interpreter: "python3",
		Watch:       true,
	}
	if diff := cmp.Diff(want, cfg.Scripts); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.Telemetry.Enabled {
		t.Fatal("telemetry should be off by default")
	}
	if !errors.Is(cfg.Validate(), config.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", cfg.Validate())
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeConfig(t, home, "")

	cfg, err := config.LoadFrom(home)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.FileMissing {
		t.Fatal("FileMissing should be false for an empty file")
	}
	if cfg.Scripts.Interpreter != "python3" {
		t.Fatalf("interpreter = %q", cfg.Scripts.Interpreter)
	}
}

func TestLoad_EnvOverridesConfig(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeConfig(t, home, "telegram:\n  token: from-file\n  allowed_ids: [1]\nscripts:\n  interpreter: python2\n")
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("SCRIPTBOT_ALLOWED_IDS", "42, 7 ,")
	t.Setenv("SCRIPTBOT_INTERPRETER", "/usr/bin/python3")
	t.Setenv("SCRIPTBOT_SCRIPTS_DIR", "/srv/scripts")
	t.Setenv("SCRIPTBOT_LOG_LEVEL", "warn")

	cfg, err := config.LoadFrom(home)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if diff := cmp.Diff([]int64{42, 7}, cfg.Telegram.AllowedIDs); diff != "" {
		t.Fatalf("allowed ids mismatch (-want +got):\n%s", diff)
	}
	if cfg.Scripts.Interpreter != "/usr/bin/python3" {
		t.Fatalf("interpreter = %q", cfg.Scripts.Interpreter)
	}
	if cfg.Scripts.Dir != "/srv/scripts" {
		t.Fatalf("absolute scripts dir should be kept, got %q", cfg.Scripts.Dir)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidAllowedIDsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCRIPTBOT_ALLOWED_IDS", "42,bob")
	if _, err := config.LoadFrom(t.TempDir()); err == nil {
		t.Fatal("expected error for non-numeric allowed id")
	}
}

func TestLoad_SchemaRejectsUnknownKey(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeConfig(t, home, "worker_count: 3\n")

	_, err := config.LoadFrom(home)
	var schemaErr *config.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if schemaErr.Path != config.ConfigPath(home) {
		t.Fatalf("schema error path = %q", schemaErr.Path)
	}
}

func TestLoad_SchemaRejectsWrongTypes(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"string allowed id", "telegram:\n  allowed_ids: [\"42\"]\n"},
		{"extension without dot", "scripts:\n  extension: py\n"},
		{"unknown exporter", "telemetry:\n  exporter: carrier-pigeon\n"},
		{"bad log level", "log_level: loud\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			home := t.TempDir()
			writeConfig(t, home, tc.body)
			var schemaErr *config.SchemaError
			if _, err := config.LoadFrom(home); !errors.As(err, &schemaErr) {
				t.Fatalf("expected *SchemaError, got %v", err)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	writeConfig(t, home, "telegram: [unclosed\n")
	if _, err := config.LoadFrom(home); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_BadReconcileSchedule(t *testing.T) {
	cfg := config.Config{
		Telegram:  config.TelegramConfig{Token: "123:abc"},
		Processes: config.ProcessesConfig{ReconcileSchedule: "every tuesday"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestParseAllowedIDs(t *testing.T) {
	got, err := config.ParseAllowedIDs(" 1,2,,3 ")
	if err != nil {
		t.Fatalf("ParseAllowedIDs: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if got, _ := config.ParseAllowedIDs(""); len(got) != 0 {
		t.Fatalf("expected no ids, got %v", got)
	}
}

func TestHomeDir_Default(t *testing.T) {
	t.Setenv("SCRIPTBOT_HOME", "")
	if got := config.HomeDir(); got != "." {
		t.Fatalf("HomeDir = %q, want .", got)
	}
}

func TestFingerprint_IgnoresToken(t *testing.T) {
	a := config.Config{Telegram: config.TelegramConfig{Token: "one"}}
	b := config.Config{Telegram: config.TelegramConfig{Token: "two"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint should not depend on the token")
	}
	c := config.Config{Scripts: config.ScriptsConfig{Interpreter: "bash"}}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("fingerprint should change with the interpreter")
	}
}

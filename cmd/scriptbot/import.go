package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/basket/scriptbot/internal/config"
)

// legacySettings are the values a pre-YAML deployment carried in config.ini
// ([telegram] token, allowed_users, scripts_path) or a .env file.
type legacySettings struct {
	Token       string
	AllowedIDs  []int64
	ScriptsDir  string
	Interpreter string
	sources     []string
}

func runImportCommand(ctx context.Context, args []string) int {
	_ = ctx
	return importLegacy(args, os.Stdout, os.Stderr)
}

func importLegacy(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scriptbot import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	iniPath := fs.String("ini", "config.ini", "path to legacy config.ini")
	envPath := fs.String("path", ".env", "path to legacy .env file")
	force := fs.Bool("force", false, "overwrite existing config.yaml values")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(stderr, "usage: scriptbot import [--ini config.ini] [--path .env] [--force]")
		return 2
	}

	var legacy legacySettings
	if err := legacy.readINI(*iniPath); err != nil {
		fmt.Fprintf(stderr, "read ini: %v\n", err)
		return 1
	}
	if err := legacy.readEnv(*envPath); err != nil {
		fmt.Fprintf(stderr, "read env: %v\n", err)
		return 1
	}
	if len(legacy.sources) == 0 {
		fmt.Fprintln(stdout, "nothing to import (no config.ini or .env found)")
		return 0
	}

	home := config.HomeDir()
	cfgPath := config.ConfigPath(home)
	raw := make(map[string]any)
	if b, err := os.ReadFile(cfgPath); err == nil && len(b) > 0 {
		if err := yaml.Unmarshal(b, &raw); err != nil {
			fmt.Fprintf(stderr, "parse config.yaml: %v\n", err)
			return 1
		}
	}

	var imported, skipped []string
	set := func(section, key string, val any, label string) {
		if isEmptyValue(val) {
			return
		}
		sec, _ := raw[section].(map[string]any)
		if sec == nil {
			sec = make(map[string]any)
		}
		if existing, ok := sec[key]; ok && !*force && !isEmptyValue(existing) {
			skipped = append(skipped, label)
			return
		}
		sec[key] = val
		raw[section] = sec
		imported = append(imported, label)
	}
	set("telegram", "token", legacy.Token, "token")
	if len(legacy.AllowedIDs) > 0 {
		set("telegram", "allowed_ids", legacy.AllowedIDs, "allowed_ids")
	}
	set("scripts", "dir", legacy.ScriptsDir, "scripts_dir")
	set("scripts", "interpreter", legacy.Interpreter, "interpreter")

	if len(imported) == 0 {
		fmt.Fprintln(stdout, "no keys imported (already set)")
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		fmt.Fprintf(stderr, "mkdir config dir: %v\n", err)
		return 1
	}
	out, err := yaml.Marshal(raw)
	if err != nil {
		fmt.Fprintf(stderr, "marshal config.yaml: %v\n", err)
		return 1
	}
	// The file now holds the bot token.
	if err := os.WriteFile(cfgPath, out, 0o600); err != nil {
		fmt.Fprintf(stderr, "write config.yaml: %v\n", err)
		return 1
	}
	if _, err := config.LoadFrom(home); err != nil {
		fmt.Fprintf(stderr, "imported config does not validate: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "imported from %s: %s\n", strings.Join(legacy.sources, ", "), strings.Join(imported, ", "))
	if len(skipped) > 0 {
		fmt.Fprintf(stdout, "skipped: %s\n", strings.Join(skipped, ", "))
	}
	return 0
}

func (l *legacySettings) readINI(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return err
	}
	sec := f.Section("telegram")
	if v := strings.TrimSpace(sec.Key("token").String()); v != "" {
		l.Token = v
	}
	if v := sec.Key("allowed_users").String(); strings.TrimSpace(v) != "" {
		ids, err := config.ParseAllowedIDs(v)
		if err != nil {
			return fmt.Errorf("allowed_users: %w", err)
		}
		l.AllowedIDs = ids
	}
	if v := strings.TrimSpace(sec.Key("scripts_path").String()); v != "" {
		l.ScriptsDir = v
	}
	l.sources = append(l.sources, path)
	return nil
}

// readEnv fills values the ini file left empty.
func (l *legacySettings) readEnv(path string) error {
	kv, err := parseDotEnvFile(path)
	if err != nil {
		return err
	}
	if len(kv) == 0 {
		return nil
	}
	found := false
	if v := kv["TELEGRAM_TOKEN"]; v != "" && l.Token == "" {
		l.Token, found = v, true
	}
	if v := kv["SCRIPTBOT_ALLOWED_IDS"]; v != "" && len(l.AllowedIDs) == 0 {
		ids, err := config.ParseAllowedIDs(v)
		if err != nil {
			return fmt.Errorf("SCRIPTBOT_ALLOWED_IDS: %w", err)
		}
		l.AllowedIDs, found = ids, true
	}
	if v := kv["SCRIPTBOT_SCRIPTS_DIR"]; v != "" && l.ScriptsDir == "" {
		l.ScriptsDir, found = v, true
	}
	if v := kv["SCRIPTBOT_INTERPRETER"]; v != "" {
		l.Interpreter, found = v, true
	}
	if found {
		l.sources = append(l.sources, path)
	}
	return nil
}

func parseDotEnvFile(path string) (map[string]string, error) {
	out := make(map[string]string)
	b, err := os.ReadFile(path)
	if err != nil {
		// Missing .env is not fatal for import.
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		if k, v, ok := parseEnvLine(line); ok {
			out[k] = v
		}
	}
	return out, nil
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []int64:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

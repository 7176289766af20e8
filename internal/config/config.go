package config

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/basket/scriptbot/internal/otel"
)

// ErrMissingToken is returned by Validate when no bot token is configured.
var ErrMissingToken = errors.New("telegram token is not configured (set telegram.token or TELEGRAM_TOKEN)")

type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
}

type ScriptsConfig struct {
	// Dir is resolved against the home directory when relative.
	Dir         string `yaml:"dir"`
	Extension   string `yaml:"extension"`
	Interpreter string `yaml:"interpreter"`
	Watch       bool   `yaml:"watch"`
}

type ProcessesConfig struct {
	// ReconcileSchedule is a standard 5-field cron expression. Empty disables
	// reconciliation entirely.
	ReconcileSchedule   string `yaml:"reconcile_schedule"`
	TerminateOnShutdown bool   `yaml:"terminate_on_shutdown"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	Telegram  TelegramConfig  `yaml:"telegram"`
	Scripts   ScriptsConfig   `yaml:"scripts"`
	Processes ProcessesConfig `yaml:"processes"`
	Telemetry otel.Config     `yaml:"telemetry"`

	// FileMissing is set when config.yaml does not exist and everything
	// came from defaults and the environment.
	FileMissing bool `yaml:"-"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// HomeDir returns $SCRIPTBOT_HOME, or the working directory when unset.
func HomeDir() string {
	if override := os.Getenv("SCRIPTBOT_HOME"); override != "" {
		return override
	}
	return "."
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Scripts: ScriptsConfig{
			Dir:         "./scripts",
			Extension:   ".py",
			Interpreter: "python3",
			Watch:       true,
		},
		Telemetry: otel.Config{
			Exporter:    "stdout",
			ServiceName: "scriptbot",
		},
	}
}

// Load reads config.yaml from HomeDir and applies environment overrides.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads <homeDir>/config.yaml, validates it against the embedded
// schema and applies environment overrides. A missing file is not an error.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	configPath := ConfigPath(homeDir)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
		cfg.FileMissing = true
	} else if len(data) > 0 {
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
		if err := validateDocument(configPath, raw); err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config.yaml: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Scripts.Dir) == "" {
		cfg.Scripts.Dir = "./scripts"
	}
	if !filepath.IsAbs(cfg.Scripts.Dir) {
		cfg.Scripts.Dir = filepath.Join(cfg.HomeDir, cfg.Scripts.Dir)
	}
	if cfg.Scripts.Extension == "" {
		cfg.Scripts.Extension = ".py"
	}
	if !strings.HasPrefix(cfg.Scripts.Extension, ".") {
		cfg.Scripts.Extension = "." + cfg.Scripts.Extension
	}
	if strings.TrimSpace(cfg.Scripts.Interpreter) == "" {
		cfg.Scripts.Interpreter = "python3"
	}
	cfg.Processes.ReconcileSchedule = strings.TrimSpace(cfg.Processes.ReconcileSchedule)
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "scriptbot"
	}
}

// EnvKeys lists the environment variables that override config.yaml.
var EnvKeys = []string{
	"TELEGRAM_TOKEN",
	"SCRIPTBOT_ALLOWED_IDS",
	"SCRIPTBOT_SCRIPTS_DIR",
	"SCRIPTBOT_INTERPRETER",
	"SCRIPTBOT_LOG_LEVEL",
}

func applyEnvOverrides(cfg *Config) error {
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("SCRIPTBOT_ALLOWED_IDS"); raw != "" {
		ids, err := ParseAllowedIDs(raw)
		if err != nil {
			return fmt.Errorf("SCRIPTBOT_ALLOWED_IDS: %w", err)
		}
		cfg.Telegram.AllowedIDs = ids
	}
	if raw := os.Getenv("SCRIPTBOT_SCRIPTS_DIR"); raw != "" {
		cfg.Scripts.Dir = raw
	}
	if raw := os.Getenv("SCRIPTBOT_INTERPRETER"); raw != "" {
		cfg.Scripts.Interpreter = raw
	}
	if raw := os.Getenv("SCRIPTBOT_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	return nil
}

// ParseAllowedIDs parses a comma-separated list of Telegram user IDs.
// Blank entries are skipped.
func ParseAllowedIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate reports configuration that makes the bot unable to start.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if c.Processes.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.Processes.ReconcileSchedule); err != nil {
			return fmt.Errorf("processes.reconcile_schedule: %w", err)
		}
	}
	return nil
}

// Fingerprint returns a stable hash of the settings that shape behaviour.
// The token is not part of it, so the value can be logged.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "ids=%v|dir=%s|ext=%s|interp=%s|watch=%t|reconcile=%s|log=%s",
		c.Telegram.AllowedIDs, c.Scripts.Dir, c.Scripts.Extension, c.Scripts.Interpreter,
		c.Scripts.Watch, c.Processes.ReconcileSchedule, c.LogLevel)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

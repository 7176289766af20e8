package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/basket/scriptbot/internal/config"
	"github.com/basket/scriptbot/internal/scripts"
	"github.com/basket/scriptbot/internal/shared"
	"github.com/basket/scriptbot/internal/sysinfo"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check failed.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return true
		}
	}
	return false
}

// telegramHost is resolved by the network check.
var telegramHost = "api.telegram.org"

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkEnvironment,
		checkToken,
		checkAllowlist,
		checkScriptDir,
		checkInterpreter,
		checkPermissions,
		checkHostMetrics,
		checkNetwork,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	if cfg.FileMissing {
		return CheckResult{
			Name:    "Config",
			Status:  "WARN",
			Message: fmt.Sprintf("%s not found, using defaults and environment", config.ConfigPath(cfg.HomeDir)),
		}
	}
	return CheckResult{
		Name:    "Config",
		Status:  "PASS",
		Message: fmt.Sprintf("Loaded from %s", config.ConfigPath(cfg.HomeDir)),
		Detail:  cfg.Fingerprint(),
	}
}

func checkEnvironment(_ context.Context, _ *config.Config) CheckResult {
	var set []string
	for _, key := range config.EnvKeys {
		if v := os.Getenv(key); v != "" {
			set = append(set, key+"="+shared.RedactEnvValue(key, v))
		}
	}
	if len(set) == 0 {
		return CheckResult{Name: "Environment", Status: "PASS", Message: "No overrides set"}
	}
	return CheckResult{
		Name:    "Environment",
		Status:  "PASS",
		Message: fmt.Sprintf("%d override(s) set", len(set)),
		Detail:  strings.Join(set, ", "),
	}
}

func checkToken(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Bot Token", Status: "SKIP", Message: "Config missing"}
	}
	if err := cfg.Validate(); err != nil {
		detail := ""
		if errors.Is(err, config.ErrMissingToken) {
			detail = "Set telegram.token in config.yaml or TELEGRAM_TOKEN"
		}
		return CheckResult{Name: "Bot Token", Status: "FAIL", Message: err.Error(), Detail: detail}
	}
	return CheckResult{Name: "Bot Token", Status: "PASS", Message: "Token configured"}
}

func checkAllowlist(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Allowlist", Status: "SKIP", Message: "Config missing"}
	}
	if len(cfg.Telegram.AllowedIDs) == 0 {
		return CheckResult{
			Name:    "Allowlist",
			Status:  "WARN",
			Message: "No operators allowed; every request will be denied",
			Detail:  "Set telegram.allowed_ids or SCRIPTBOT_ALLOWED_IDS",
		}
	}
	return CheckResult{Name: "Allowlist", Status: "PASS", Message: fmt.Sprintf("%d operator(s) allowed", len(cfg.Telegram.AllowedIDs))}
}

func checkScriptDir(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Scripts", Status: "SKIP", Message: "Config missing"}
	}
	list, err := scripts.NewScanner(cfg.Scripts.Dir, cfg.Scripts.Extension).List()
	if err != nil {
		return CheckResult{Name: "Scripts", Status: "FAIL", Message: err.Error()}
	}
	if len(list) == 0 {
		return CheckResult{
			Name:    "Scripts",
			Status:  "WARN",
			Message: fmt.Sprintf("No %s files in %s", cfg.Scripts.Extension, cfg.Scripts.Dir),
		}
	}
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	return CheckResult{
		Name:    "Scripts",
		Status:  "PASS",
		Message: fmt.Sprintf("%d script(s) in %s", len(list), cfg.Scripts.Dir),
		Detail:  strings.Join(names, ", "),
	}
}

func checkInterpreter(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Interpreter", Status: "SKIP", Message: "Config missing"}
	}
	path, err := exec.LookPath(cfg.Scripts.Interpreter)
	if err != nil {
		return CheckResult{
			Name:    "Interpreter",
			Status:  "FAIL",
			Message: fmt.Sprintf("%s not found: %v", cfg.Scripts.Interpreter, err),
			Detail:  "Install it or set scripts.interpreter / SCRIPTBOT_INTERPRETER",
		}
	}
	return CheckResult{Name: "Interpreter", Status: "PASS", Message: path}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}

	logDir := filepath.Join(cfg.HomeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Cannot create log dir: %v", err)}
	}
	testFile := filepath.Join(logDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Log dir unwritable: %v", err)}
	}
	os.Remove(testFile)

	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Log directory writable"}
}

func checkHostMetrics(_ context.Context, _ *config.Config) CheckResult {
	src := sysinfo.DefaultSource()
	if _, err := src.Uname(); err != nil {
		return CheckResult{Name: "Host Metrics", Status: "WARN", Message: fmt.Sprintf("uname unavailable: %v", err)}
	}
	mem, err := src.Memory()
	if err != nil {
		return CheckResult{Name: "Host Metrics", Status: "WARN", Message: fmt.Sprintf("memory stats unavailable: %v", err)}
	}
	if _, err := src.CPUTimes(); err != nil {
		return CheckResult{Name: "Host Metrics", Status: "WARN", Message: fmt.Sprintf("cpu stats unavailable: %v", err)}
	}
	return CheckResult{
		Name:    "Host Metrics",
		Status:  "PASS",
		Message: fmt.Sprintf("Readable (%d MB total memory)", mem.Total/(1024*1024)),
	}
}

func checkNetwork(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Network", Status: "SKIP", Message: "Config missing"}
	}

	// DNS lookup with timeout.
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, telegramHost)
	latency := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:    "Network",
			Status:  "FAIL",
			Message: fmt.Sprintf("DNS lookup failed for %s: %v", telegramHost, err),
			Detail:  fmt.Sprintf("latency=%dms", latency.Milliseconds()),
		}
	}

	return CheckResult{
		Name:    "Network",
		Status:  "PASS",
		Message: fmt.Sprintf("DNS resolved %s (%d addresses, %dms)", telegramHost, len(addrs), latency.Milliseconds()),
		Detail:  fmt.Sprintf("addresses=%v", addrs),
	}
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basket/scriptbot/internal/doctor"
)

func writeDoctorHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SCRIPTBOT_HOME", home)
	t.Setenv("TELEGRAM_TOKEN", "")
	cfg := "telegram:\n  token: \"123:abc\"\n  allowed_ids: [42]\nscripts:\n  dir: scripts\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(home, "scripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestRunDoctorCommand_TextOutput(t *testing.T) {
	writeDoctorHome(t)

	code := runDoctorCommand(context.Background(), nil)
	// 0 or 1 depending on the environment (interpreter, DNS), never 2.
	if code == 2 {
		t.Fatalf("unexpected exit code 2 (parse error)")
	}
}

func TestRunDoctorCommand_JSONOutput(t *testing.T) {
	writeDoctorHome(t)

	for _, arg := range []string{"-json", "--json"} {
		if code := runDoctorCommand(context.Background(), []string{arg}); code != 0 {
			t.Fatalf("%s: got exit code %d, want 0", arg, code)
		}
	}
}

func TestRunDoctorCommand_UnknownFlag(t *testing.T) {
	writeDoctorHome(t)

	if code := runDoctorCommand(context.Background(), []string{"--verbose"}); code != 2 {
		t.Fatalf("got exit code %d, want 2", code)
	}
}

func TestRunDoctorCommand_NoConfigFile(t *testing.T) {
	t.Setenv("SCRIPTBOT_HOME", t.TempDir())
	t.Setenv("TELEGRAM_TOKEN", "")

	// Missing token is a FAIL, so the report exits 1.
	if code := runDoctorCommand(context.Background(), nil); code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestWriteReport_Plain(t *testing.T) {
	diag := doctor.Diagnosis{
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		System:    doctor.SystemInfo{OS: "linux", Arch: "amd64", Go: "go1.24.1", Version: "test"},
		Results: []doctor.CheckResult{
			{Name: "Config", Status: "PASS", Message: "Loaded"},
			{Name: "Network", Status: "FAIL", Message: "DNS lookup failed", Detail: "latency=5ms"},
		},
	}
	var buf bytes.Buffer
	writeReport(&buf, diag, false)
	out := buf.String()

	for _, want := range []string{
		"Scriptbot Doctor Report (2024-01-02T03:04:05Z)",
		"System: linux/amd64 (go1.24.1) test",
		"[PASS] Config",
		"[FAIL] Network",
		"latency=5ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain report contains escape codes:\n%s", out)
	}
}

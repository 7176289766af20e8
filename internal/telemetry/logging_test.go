package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/scriptbot/internal/shared"
)

func readLastEntry(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		t.Fatalf("expected at least one log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("unmarshal log json: %v", err)
	}
	return entry
}

func TestNewLogger_EmitsStructuredSchema(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "debug", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Info("startup phase", "phase", "config_loaded", "script", "a.py")

	raw, err := os.ReadFile(filepath.Join(home, "logs", "system.jsonl"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	entry := readLastEntry(t, raw)

	for _, key := range []string{"timestamp", "level", "msg", "component", "trace_id"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing required key %q in log entry: %#v", key, entry)
		}
	}
	if entry["component"] != "scriptbot" {
		t.Fatalf("expected component=scriptbot, got %#v", entry["component"])
	}
	if entry["trace_id"] != "-" {
		t.Fatalf("expected trace_id='-', got %#v", entry["trace_id"])
	}
	if entry["script"] != "a.py" {
		t.Fatalf("expected script propagation, got %#v", entry["script"])
	}
}

func TestNewLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info")

	logger.Info("security check",
		"token", "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw",
		"auth_header", "Authorization: Bearer super-secret-token",
		"error", errors.New("Post https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/getMe: timeout"),
	)

	entry := readLastEntry(t, buf.Bytes())
	if entry["token"] != "[REDACTED]" {
		t.Fatalf("expected token redaction, got %#v", entry["token"])
	}
	if entry["auth_header"] != "[REDACTED]" {
		t.Fatalf("expected auth_header redaction, got %#v", entry["auth_header"])
	}
	if msg, _ := entry["error"].(string); strings.Contains(msg, "AAHdqTcv") {
		t.Fatalf("expected error value redaction, got %q", msg)
	}
}

func TestWithTrace_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info")

	ctx := shared.WithOperatorID(shared.WithTraceID(context.Background(), "trace-1"), 42)
	WithTrace(ctx, logger).Info("dispatch")

	entry := readLastEntry(t, buf.Bytes())
	if entry["trace_id"] != "trace-1" {
		t.Fatalf("expected trace_id=trace-1, got %#v", entry["trace_id"])
	}
	if entry["operator_id"] != float64(42) {
		t.Fatalf("expected operator_id=42, got %#v", entry["operator_id"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readEntries(t *testing.T, home string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(home, "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal audit entry %q: %v", line, err)
		}
		out = append(out, e)
	}
	return out
}

func TestRecordWritesAuditEntry(t *testing.T) {
	home := t.TempDir()
	if err := Init(home); err != nil {
		t.Fatalf("init audit: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Record(DecisionDeny, "run_script", "not_allowlisted", "a.py", 7)
	Record(DecisionAllow, "run_script", "launched", "a.py", 42)

	entries := readEntries(t, home)
	if len(entries) < 2 {
		t.Fatalf("expected at least two audit entries, got %d", len(entries))
	}
	first := entries[0]
	if first["decision"] != "deny" {
		t.Fatalf("expected deny decision, got %#v", first["decision"])
	}
	if first["action"] != "run_script" {
		t.Fatalf("expected action run_script, got %#v", first["action"])
	}
	if first["operator_id"] != float64(7) {
		t.Fatalf("expected operator_id 7, got %#v", first["operator_id"])
	}
	if first["timestamp"] == "" || first["reason"] == "" {
		t.Fatalf("expected timestamp and reason in audit entry: %#v", first)
	}
}

func TestAuditAppendOnly(t *testing.T) {
	home := t.TempDir()
	if err := Init(home); err != nil {
		t.Fatalf("init audit: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Record(DecisionAllow, "stop_script", "terminated", "1001", 42)
	path := filepath.Join(home, "logs", "audit.jsonl")
	info1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	Record(DecisionAllow, "stop_script", "not_running", "1001", 42)
	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info2.Size() <= info1.Size() {
		t.Fatalf("expected file to grow: %d -> %d", info1.Size(), info2.Size())
	}
	if got := len(readEntries(t, home)); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}

func TestRecordRedactsSecrets(t *testing.T) {
	home := t.TempDir()
	if err := Init(home); err != nil {
		t.Fatalf("init audit: %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Record(DecisionFatal, "runtime.startup", "E_TELEGRAM_INIT", "bot token 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw rejected", 0)

	entries := readEntries(t, home)
	subject, _ := entries[0]["subject"].(string)
	if strings.Contains(subject, "AAHdqTcv") {
		t.Fatalf("expected subject to be redacted, got %q", subject)
	}
}

func TestDenyCount(t *testing.T) {
	before := DenyCount()
	Record(DecisionDeny, "list_scripts", "not_allowlisted", "", 7)
	Record(DecisionAllow, "list_scripts", "ok", "", 42)
	if got := DenyCount() - before; got != 1 {
		t.Fatalf("expected deny count to grow by 1, got %d", got)
	}
}

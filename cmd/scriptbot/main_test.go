package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		key    string
		val    string
		wantOK bool
	}{
		{name: "plain", line: "KEY=value", key: "KEY", val: "value", wantOK: true},
		{name: "spaces", line: "  KEY = value  ", key: "KEY", val: "value", wantOK: true},
		{name: "export prefix", line: "export KEY=value", key: "KEY", val: "value", wantOK: true},
		{name: "double quotes", line: `KEY="a b"`, key: "KEY", val: "a b", wantOK: true},
		{name: "single quotes", line: `KEY='a b'`, key: "KEY", val: "a b", wantOK: true},
		{name: "mismatched quotes kept", line: `KEY="a b'`, key: "KEY", val: `"a b'`, wantOK: true},
		{name: "value with equals", line: "KEY=a=b", key: "KEY", val: "a=b", wantOK: true},
		{name: "comment", line: "# KEY=value"},
		{name: "blank", line: "   "},
		{name: "no key", line: "=value"},
		{name: "no equals", line: "KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, val, ok := parseEnvLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if key != tt.key || val != tt.val {
				t.Fatalf("got (%q, %q), want (%q, %q)", key, val, tt.key, tt.val)
			}
		})
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SCRIPTBOT_TEST_SET=from-file\nSCRIPTBOT_TEST_UNSET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCRIPTBOT_TEST_SET", "from-env")
	t.Setenv("SCRIPTBOT_TEST_UNSET", "")

	loadDotEnv(path)

	if got := os.Getenv("SCRIPTBOT_TEST_SET"); got != "from-env" {
		t.Errorf("SCRIPTBOT_TEST_SET = %q, want from-env", got)
	}
	if got := os.Getenv("SCRIPTBOT_TEST_UNSET"); got != "from-file" {
		t.Errorf("SCRIPTBOT_TEST_UNSET = %q, want from-file", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	loadDotEnv(filepath.Join(t.TempDir(), "nope.env"))
}

func TestWriteUsage(t *testing.T) {
	var buf bytes.Buffer
	writeUsage(&buf, "scriptbot")
	out := buf.String()

	for _, want := range []string{
		"scriptbot doctor [-json]",
		"scriptbot import",
		"--ini <file> (default: config.ini)",
		"--path <file> (default: .env)",
		"scriptbot version",
		"TELEGRAM_TOKEN",
		"SCRIPTBOT_ALLOWED_IDS",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("usage missing %q:\n%s", want, out)
		}
	}
}

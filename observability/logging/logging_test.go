package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("marketd", "test", Options{Output: &buf})
	if closer != nil {
		t.Fatalf("expected no closer without a log file")
	}
	logger.Info("command applied", "method", "market_list")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"service":  "marketd",
		"env":      "test",
		"severity": "INFO",
		"message":  "command applied",
		"method":   "market_list",
	} {
		if line[key] != want {
			t.Fatalf("expected %s=%q, got %v", key, want, line[key])
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("expected timestamp key in %v", line)
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketd.log")
	var buf bytes.Buffer
	logger, closer := Setup("marketd", "", Options{Output: &buf, File: &FileOptions{Path: path, MaxSizeMB: 1}})
	if closer == nil {
		t.Fatalf("expected closer for file output")
	}
	logger.Warn("disk")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"severity":"WARN"`)) {
		t.Fatalf("unexpected file contents %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warning") != slog.LevelWarn || ParseLevel("") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("token", "secret"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected token redacted, got %s", attr.Value.String())
	}
	if attr := MaskField("method", "market_buy"); attr.Value.String() != "market_buy" {
		t.Fatalf("allowlisted key must pass through")
	}
	if attr := MaskField("token", ""); attr.Value.String() != "" {
		t.Fatalf("empty values stay empty")
	}
}

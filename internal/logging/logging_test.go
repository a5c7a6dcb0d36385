package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "subject", "Jane Doe")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warning, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if rec["msg"] != "kept" || rec["subject"] != "Jane Doe" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "debug", "text")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	logger.Debug("hello", "engine", "bing")
	if !strings.Contains(buf.String(), "engine=bing") {
		t.Errorf("unexpected text output %q", buf.String())
	}
	if _, err := NewWriter(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

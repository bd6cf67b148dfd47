package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spachava753/trialkit/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetupStderrOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := logging.Setup(logging.Config{Level: "warn", Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "trial_id", "t1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "trial_id=t1") {
		t.Errorf("expected warn record with attrs, got: %s", out)
	}
}

func TestSetupWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "session.log")

	logger, closer, err := logging.Setup(logging.Config{Level: "debug", File: path, Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.With("session", "s1").Debug("trial started", "index", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !strings.Contains(buf.String(), "trial started") || !strings.Contains(buf.String(), "session=s1") {
		t.Errorf("expected stderr record with attrs, got: %s", buf.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("log file is not JSON: %v\n%s", err, data)
	}
	if rec["msg"] != "trial started" || rec["session"] != "s1" {
		t.Errorf("unexpected record: %v", rec)
	}
	if rec["index"] != float64(3) {
		t.Errorf("expected index 3, got %v", rec["index"])
	}
}

func TestSetupBadLevel(t *testing.T) {
	if _, _, err := logging.Setup(logging.Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

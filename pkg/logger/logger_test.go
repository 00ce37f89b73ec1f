package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", &buf)

	log.Info("trial started", "iteration", 3, "kp", 12.5)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "trial started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "trial started")
	}
	if entry["iteration"] != float64(3) {
		t.Errorf("iteration = %v, want 3", entry["iteration"])
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
	}{
		{name: "debug level passes debug", level: "debug", wantDebug: true},
		{name: "info level drops debug", level: "info", wantDebug: false},
		{name: "error level drops debug", level: "error", wantDebug: false},
		{name: "unknown level defaults to info", level: "bogus", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewText(tt.level, &buf)
			log.Debug("probe")
			got := strings.Contains(buf.String(), "probe")
			if got != tt.wantDebug {
				t.Errorf("debug emitted = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestSetDefault(t *testing.T) {
	old := Default
	defer SetDefault(old)

	var buf bytes.Buffer
	SetDefault(NewText("warn", &buf))

	Info("should be dropped")
	Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("info message should have been filtered at warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn message missing from output")
	}
}

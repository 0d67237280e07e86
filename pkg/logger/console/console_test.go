package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{name: "info", debug: false, wantDebug: false},
		{name: "debug", debug: true, wantDebug: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewConsoleLogger(ConsoleLoggerParams{Debug: tt.debug, Output: &buf})

			l.Debug("hidden unless debug")
			l.Info("stage finished", "stage", "bias-analysis")

			out := buf.String()
			if got := strings.Contains(out, "hidden unless debug"); got != tt.wantDebug {
				t.Errorf("debug line present = %v, want %v: %q", got, tt.wantDebug, out)
			}
			if !strings.Contains(out, "stage=bias-analysis") {
				t.Errorf("missing key/value in %q", out)
			}
		})
	}
}

func TestConsoleLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Format: "json", Prefix: "worker", Output: &buf})
	l.Warn("retrying", "attempt", 2)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if line["msg"] != "retrying" || line["level"] != "warn" || line["attempt"] != float64(2) {
		t.Errorf("line = %v", line)
	}
}

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  LogLevel
	}{
		{name: "debug lower", input: "debug", want: LevelDebug},
		{name: "info upper", input: "INFO", want: LevelInfo},
		{name: "warn mixed", input: "WaRn", want: LevelWarn},
		{name: "error", input: "error", want: LevelError},
		{name: "fatal", input: "fatal", want: LevelFatal},
		{name: "warning alias", input: "warning", want: LevelWarn},
		{name: "trim spaces", input: "  debug  ", want: LevelDebug},
		{name: "unknown fallback", input: "verbose", want: LevelInfo},
		{name: "empty fallback", input: "", want: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Fatalf("ParseLevel(%q)=%v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelWarn)
	l.SetOutput(&buf)

	l.Info("dropped %d", 1)
	l.Warn("kept %d", 2)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "kept 2") {
		t.Fatalf("warn entry missing, got %q", out)
	}
}

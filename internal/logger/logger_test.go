package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, INFO, false)

	l.Info("Login attempt",
		"email", "adrenalin@gmail.com",
		"password", "adrenalin",
		"token", "1|abcdefghijklmnop",
		"user_id", 42,
		"destination_id", 7)

	out := buf.String()

	if strings.Contains(out, "adrenalin@gmail.com") {
		t.Errorf("Expected email to be redacted, got %s", out)
	}
	if !strings.Contains(out, "a****n@gmail.com") {
		t.Errorf("Expected partially redacted email, got %s", out)
	}
	if strings.Contains(out, "password=adrenalin") {
		t.Errorf("Expected password to be redacted, got %s", out)
	}
	if strings.Contains(out, "abcdefghijklmnop") {
		t.Errorf("Expected token to be truncated, got %s", out)
	}
	if strings.Contains(out, "user_id=42") {
		t.Errorf("Expected user id to be hashed, got %s", out)
	}
	if !strings.Contains(out, "destination_id=7") {
		t.Errorf("Expected destination id untouched, got %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN, false)

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected INFO line to be filtered at WARN level")
	}
	if !strings.Contains(out, "[WARN] shown") {
		t.Errorf("Expected WARN line, got %s", out)
	}
}

func TestDevelopmentDebugSkipsRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG, true)

	l.Debug("Hydrating session", "email", "adrenalin@gmail.com")

	if !strings.Contains(buf.String(), "adrenalin@gmail.com") {
		t.Errorf("Expected raw email in development debug output, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warn":    WARN,
		"Error":   ERROR,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

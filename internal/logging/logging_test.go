package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	// Info should pass
	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("info message should be logged")
	}

	line := buf.String()
	if !strings.HasPrefix(line, "INFO ") {
		t.Errorf("expected line to start with INFO, got %q", line)
	}
	if !strings.Contains(line, "info message") {
		t.Errorf("expected message in line, got %q", line)
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("executor")
	logger.SetOutput(&buf)

	logger.Info("test message")

	if !strings.Contains(buf.String(), "[executor]") {
		t.Errorf("expected component tag in line, got %q", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("capability call", map[string]interface{}{
		"capability": "shell",
	})

	if !strings.Contains(buf.String(), "capability=shell") {
		t.Errorf("expected field in line, got %q", buf.String())
	}
}

func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelError)

	logger.Info("filtered")
	logger.Warn("filtered")
	if buf.Len() > 0 {
		t.Error("info and warn should be filtered at ERROR level")
	}

	logger.Error("boom")
	if !strings.HasPrefix(buf.String(), "ERROR") {
		t.Errorf("expected ERROR line, got %q", buf.String())
	}
}

func TestLogger_Verdict(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Verdict("fetch_data", true, 0.9)

	line := buf.String()
	if !strings.Contains(line, "verdict") {
		t.Errorf("expected verdict event, got %q", line)
	}
	if !strings.Contains(line, "node=fetch_data") {
		t.Errorf("expected node field, got %q", line)
	}
	if !strings.Contains(line, "score=0.90") {
		t.Errorf("expected formatted score, got %q", line)
	}
}

func TestLogger_Escalation(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Escalation("install_pkg", "missing network access")

	line := buf.String()
	if !strings.HasPrefix(line, "WARN") {
		t.Errorf("escalation should be WARN level, got %q", line)
	}
	if !strings.Contains(line, "diagnosis=missing network access") {
		t.Errorf("expected diagnosis field, got %q", line)
	}
}

func TestLogger_CapabilityResult(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelDebug)

	logger.CapabilityResult("read_file", 5*time.Millisecond, nil)
	if !strings.Contains(buf.String(), "capability_result") {
		t.Errorf("expected capability_result event, got %q", buf.String())
	}

	buf.Reset()
	logger.CapabilityResult("read_file", 5*time.Millisecond, errTest)
	if !strings.Contains(buf.String(), "capability_error") {
		t.Errorf("expected capability_error event, got %q", buf.String())
	}
}

var errTest = errorString("no such file")

type errorString string

func (e errorString) Error() string { return string(e) }

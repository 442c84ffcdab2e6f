package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/openclaw/taskforge/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSetupNoopProtocol(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Protocol: "noop"}
	shutdown, err := Setup(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Protocol: "carrier-pigeon"}
	_, err := Setup(context.Background(), cfg, "test")
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should name the protocol: %v", err)
	}
}

package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewPicksLevelByEnvironment(t *testing.T) {
	dev, err := New("development")
	if err != nil {
		t.Fatalf("New(development): %v", err)
	}
	if !dev.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug logging in development")
	}

	prod, err := New("production")
	if err != nil {
		t.Fatalf("New(production): %v", err)
	}
	if prod.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug logging disabled in production")
	}
	if !prod.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected info logging in production")
	}
}

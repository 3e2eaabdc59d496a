package main

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBootstrapLogger_LevelFromEnv(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	t.Setenv("LOG_LEVEL", "warn")
	if err := bootstrapLogger(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := zerolog.GlobalLevel(); got != zerolog.WarnLevel {
		t.Errorf("Expected warn level, got %s", got)
	}

	t.Setenv("LOG_LEVEL", "")
	if err := bootstrapLogger(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected info level by default, got %s", got)
	}
}

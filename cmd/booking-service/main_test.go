package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger_LevelParsing(t *testing.T) {
	defer func() {
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	}()

	setupLogger(false, "debug")
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	// Неизвестный уровень откатывается на info.
	setupLogger(false, "verbose")
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected fallback to info, got %s", log.GetLevel())
	}

	setupLogger(true, "warn")
	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
}

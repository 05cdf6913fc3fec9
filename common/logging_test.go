package common

import (
	"strings"
	"testing"
)

func TestRedactKeyValuePair(t *testing.T) {
	got := redactSecrets("db password=hunter2 set")
	if got != "db password=***REDACTED*** set" {
		t.Fatalf("value should be scrubbed, label kept: %q", got)
	}
}

func TestRedactConnectionString(t *testing.T) {
	got := redactSecrets("connected to postgres://rolewarden:s3cret@db:5432/rolewarden")
	if got != "connected to postgres:***REDACTED***" {
		t.Fatalf("credentialed DSN leaked: %q", got)
	}
}

func TestRedactProtectedEnvValue(t *testing.T) {
	t.Setenv("ROLEWARDEN_DB_PASS", "supersensitive")
	got := redactSecrets("value is supersensitive")
	if got != "value is ***REDACTED***" {
		t.Fatalf("protected env value leaked: %q", got)
	}
}

func TestRedactLongOpaqueString(t *testing.T) {
	got := redactSecrets("deploy id " + strings.Repeat("a", 40))
	if got != "deploy id ***REDACTED***" {
		t.Fatalf("long opaque string leaked: %q", got)
	}
}

func TestRedactLeavesPlainLinesAlone(t *testing.T) {
	const line = "reconcile finished for role media"
	if got := redactSecrets(line); got != line {
		t.Fatalf("harmless line mangled: %q", got)
	}
}

func TestSetLogLevel(t *testing.T) {
	defer levelOverride.Store("")

	if err := SetLogLevel("chatty"); err == nil {
		t.Fatalf("unknown level must be rejected")
	}
	if err := SetLogLevel(" Debug "); err != nil {
		t.Fatalf("SetLogLevel: %v", err)
	}
	if got := LogLevel(); got != "debug" {
		t.Fatalf("override not applied, got %q", got)
	}
}

func TestLogLevelFallsBackToEnv(t *testing.T) {
	levelOverride.Store("")
	t.Setenv("ROLEWARDEN_LOG_LEVEL", "WARN")
	if got := LogLevel(); got != "warn" {
		t.Fatalf("env level not picked up, got %q", got)
	}
}

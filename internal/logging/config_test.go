package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		want zerolog.Level
		ok   bool
	}{
		"":        {zerolog.InfoLevel, false},
		"DEBUG":   {zerolog.DebugLevel, true},
		" warn ":  {zerolog.WarnLevel, true},
		"warning": {zerolog.WarnLevel, true},
		"off":     {zerolog.Disabled, true},
		"loud":    {zerolog.InfoLevel, false},
	}
	for raw, tc := range cases {
		got, ok := parseLevel(raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseLevel(%q) = (%v, %v), want (%v, %v)", raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEnvOverridesApplyOnTopOfProfile(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogFile, "/tmp/bridge.log")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("expected error level, got %v", cfg.Level)
	}
	if !cfg.Timestamp {
		t.Fatalf("expected timestamp override")
	}
	if cfg.File != "/tmp/bridge.log" {
		t.Fatalf("expected file override, got %q", cfg.File)
	}
}

func TestParseBoolRejectsGarbage(t *testing.T) {
	if _, ok := parseBool("maybe"); ok {
		t.Fatalf("expected garbage bool to be rejected")
	}
	if v, ok := parseBool("1"); !ok || !v {
		t.Fatalf("expected 1 to parse as true")
	}
}

func TestApplyLevelDefersToEnvironment(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	t.Setenv(EnvLogLevel, "")
	if !ApplyLevel("warn") || zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected config level to apply, got %v", zerolog.GlobalLevel())
	}
	if ApplyLevel("shouting") {
		t.Fatalf("unknown level must be ignored")
	}

	t.Setenv(EnvLogLevel, "debug")
	if ApplyLevel("error") {
		t.Fatalf("config level must not override the environment")
	}
}

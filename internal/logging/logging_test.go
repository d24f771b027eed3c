// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{"frames", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseBool(t *testing.T) {
	if v, ok := parseBool("true"); !v || !ok {
		t.Error("expected true")
	}
	if _, ok := parseBool(""); ok {
		t.Error("empty should not parse")
	}
	if _, ok := parseBool("maybe"); ok {
		t.Error("garbage should not parse")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogTimestamp, "false")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.NoColor || cfg.Timestamp {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestInstall_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	ConfigureTests()
	install(Config{Level: zerolog.DebugLevel, NoColor: true, Out: &buf})
	logger := New("node")
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "component=node") || !strings.Contains(out, "hello") {
		t.Errorf("unexpected log line %q", out)
	}
}

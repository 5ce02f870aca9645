package config

import (
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Language != "en" {
		t.Errorf("Language = %q, want en", cfg.Language)
	}
	if cfg.MinConfidence != 0.7 {
		t.Errorf("MinConfidence = %.2f, want 0.7", cfg.MinConfidence)
	}
	if cfg.DuplicateTolerance != 3 {
		t.Errorf("DuplicateTolerance = %d, want 3", cfg.DuplicateTolerance)
	}
	if cfg.AnalyzerMode != ModeAuto {
		t.Errorf("AnalyzerMode = %q, want auto", cfg.AnalyzerMode)
	}
	if cfg.InitRetries != 3 {
		t.Errorf("InitRetries = %d, want 3", cfg.InitRetries)
	}
	if cfg.InitBackoff != time.Second {
		t.Errorf("InitBackoff = %s, want 1s", cfg.InitBackoff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANONYMIZER_LANGUAGE", "de")
	t.Setenv("ANONYMIZER_MIN_CONFIDENCE", "0.5")
	t.Setenv("ANONYMIZER_ANALYZER_MODE", "none")
	t.Setenv("ANONYMIZER_DUP_TOLERANCE", "5")

	cfg := NewDefaultConfig()

	if cfg.Language != "de" {
		t.Errorf("Language = %q, want de", cfg.Language)
	}
	if cfg.MinConfidence != 0.5 {
		t.Errorf("MinConfidence = %.2f, want 0.5", cfg.MinConfidence)
	}
	if cfg.AnalyzerMode != ModeNone {
		t.Errorf("AnalyzerMode = %q, want none", cfg.AnalyzerMode)
	}
	if cfg.DuplicateTolerance != 5 {
		t.Errorf("DuplicateTolerance = %d, want 5", cfg.DuplicateTolerance)
	}
}

func TestPresets(t *testing.T) {
	fb := NewFallbackOnlyConfig()
	if fb.AnalyzerMode != ModeNone {
		t.Errorf("fallback-only preset mode = %q", fb.AnalyzerMode)
	}
	if err := fb.Validate(); err != nil {
		t.Errorf("fallback-only preset must validate: %v", err)
	}

	strict := NewStrictConfig()
	if strict.MinConfidence != 0.5 {
		t.Errorf("strict preset MinConfidence = %.2f", strict.MinConfidence)
	}
	if strict.DuplicateTolerance != 1 {
		t.Errorf("strict preset DuplicateTolerance = %d", strict.DuplicateTolerance)
	}
	if err := strict.Validate(); err != nil {
		t.Errorf("strict preset must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"confidence above 1", func(c *Config) { c.MinConfidence = 1.5 }},
		{"negative confidence", func(c *Config) { c.MinConfidence = -0.1 }},
		{"zero tolerance", func(c *Config) { c.DuplicateTolerance = 0 }},
		{"unknown mode", func(c *Config) { c.AnalyzerMode = "telepathy" }},
		{"remote mode without url", func(c *Config) { c.AnalyzerMode = ModeRemote; c.RemoteAnalyzerURL = "" }},
		{"non-http remote url", func(c *Config) { c.RemoteAnalyzerURL = "ftp://analyzer" }},
		{"negative audit cap", func(c *Config) { c.AuditMaxLen = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_SLICE", "a, b ,c")

	if got := GetEnv("TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnv default = %q", got)
	}
	if !GetEnvBool("TEST_BOOL", false) {
		t.Error("GetEnvBool should parse true")
	}
	if got := GetEnvFloat("TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("GetEnvFloat = %v", got)
	}
	if got := GetEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("GetEnvInt = %v", got)
	}
	got := GetEnvSlice("TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("GetEnvSlice = %v", got)
	}

	t.Setenv("TEST_BOOL", "not-a-bool")
	if GetEnvBool("TEST_BOOL", false) {
		t.Error("unparseable bool should fall back to default")
	}
}

func TestClampedValues(t *testing.T) {
	t.Setenv("ANONYMIZER_DUP_TOLERANCE", "9999")
	cfg := NewDefaultConfig()
	if cfg.DuplicateTolerance != 64 {
		t.Errorf("tolerance should clamp to 64, got %d", cfg.DuplicateTolerance)
	}

	t.Setenv("ANONYMIZER_DUP_TOLERANCE", "0")
	cfg = NewDefaultConfig()
	if cfg.DuplicateTolerance != 1 {
		t.Errorf("tolerance should clamp to 1, got %d", cfg.DuplicateTolerance)
	}
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// AnalyzerMode selects the primary detector backend.
type AnalyzerMode string

const (
	ModeAuto   AnalyzerMode = "auto"   // local model if present, else remote if configured, else none
	ModeLocal  AnalyzerMode = "local"  // local ONNX NER model only
	ModeRemote AnalyzerMode = "remote" // remote analyzer service only
	ModeNone   AnalyzerMode = "none"   // fallback-only, no primary detector
)

// Config holds global settings for the anonymizer gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	Language      string  // Analysis language (default: "en")
	MinConfidence float64 // Primary detector score threshold (default: 0.7)

	// DuplicateTolerance is the fallback detector's near-duplicate
	// suppression distance in bytes (default: 3).
	DuplicateTolerance int

	// PolicyPath points to an optional YAML policy file overriding the
	// built-in placeholder/exclusion/common-word tables.
	PolicyPath string

	// === Primary Detector ===
	AnalyzerMode      AnalyzerMode // "auto", "local", "remote", "none"
	RemoteAnalyzerURL string       // base URL of a remote analyzer service
	MaxAnalyzerCalls  int          // concurrent calls into the analyzer (default: 16)
	InitRetries       int          // analyzer init attempts (default: 3)
	InitBackoff       time.Duration

	// === Audit ===
	AuditLogPath   string // JSONL audit file path; empty disables the file sink
	AuditRedisAddr string // Redis address for the audit stream; empty disables
	AuditRedisKey  string // Redis list key (default: "anonymizer:audit")
	AuditMaxLen    int64  // cap on the Redis audit list (default: 10000)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		Language:           GetEnv("ANONYMIZER_LANGUAGE", "en"),
		MinConfidence:      GetEnvFloat("ANONYMIZER_MIN_CONFIDENCE", 0.7),
		DuplicateTolerance: clampInt(GetEnvInt("ANONYMIZER_DUP_TOLERANCE", 3), 1, 64),
		PolicyPath:         GetEnv("ANONYMIZER_POLICY_PATH", ""),

		AnalyzerMode:      AnalyzerMode(GetEnv("ANONYMIZER_ANALYZER_MODE", string(ModeAuto))),
		RemoteAnalyzerURL: GetEnv("ANONYMIZER_REMOTE_URL", ""),
		MaxAnalyzerCalls:  clampInt(GetEnvInt("ANONYMIZER_MAX_ANALYZER_CALLS", 16), 1, 1024),
		InitRetries:       clampInt(GetEnvInt("ANONYMIZER_INIT_RETRIES", 3), 1, 10),
		InitBackoff:       time.Duration(GetEnvInt("ANONYMIZER_INIT_BACKOFF_MS", 1000)) * time.Millisecond,

		AuditLogPath:   GetEnv("ANONYMIZER_AUDIT_LOG", "audit_events.jsonl"),
		AuditRedisAddr: GetEnv("ANONYMIZER_AUDIT_REDIS_ADDR", ""),
		AuditRedisKey:  GetEnv("ANONYMIZER_AUDIT_REDIS_KEY", "anonymizer:audit"),
		AuditMaxLen:    int64(GetEnvInt("ANONYMIZER_AUDIT_MAX_LEN", 10000)),
	}
}

// NewFallbackOnlyConfig creates a Config that never touches a primary
// detector. Use for air-gapped deployments or when no model is available.
func NewFallbackOnlyConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AnalyzerMode = ModeNone
	return cfg
}

// NewStrictConfig creates a Config tuned for compliance-heavy workloads:
// lower confidence threshold means more candidates reach the classifier.
func NewStrictConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.MinConfidence = 0.5
	cfg.DuplicateTolerance = 1
	return cfg
}

// clampInt ensures a value is within bounds.
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.
// Exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %.2f", c.MinConfidence)
	}
	if c.DuplicateTolerance < 1 {
		return fmt.Errorf("duplicate tolerance must be positive, got %d", c.DuplicateTolerance)
	}
	switch c.AnalyzerMode {
	case ModeAuto, ModeLocal, ModeRemote, ModeNone:
	default:
		return fmt.Errorf("unknown analyzer mode %q", c.AnalyzerMode)
	}
	if c.AnalyzerMode == ModeRemote && c.RemoteAnalyzerURL == "" {
		return fmt.Errorf("analyzer mode %q requires ANONYMIZER_REMOTE_URL", ModeRemote)
	}
	if c.RemoteAnalyzerURL != "" &&
		!strings.HasPrefix(c.RemoteAnalyzerURL, "http://") &&
		!strings.HasPrefix(c.RemoteAnalyzerURL, "https://") {
		return fmt.Errorf("remote analyzer URL must be http(s), got %q", c.RemoteAnalyzerURL)
	}
	if c.AuditMaxLen < 0 {
		return fmt.Errorf("audit max length must be non-negative, got %d", c.AuditMaxLen)
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

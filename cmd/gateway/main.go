package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/lakhansamani/coach-sophia-ai-anonymizer/pkg/audit"
	"github.com/lakhansamani/coach-sophia-ai-anonymizer/pkg/config"
	"github.com/lakhansamani/coach-sophia-ai-anonymizer/pkg/patterns"
	"github.com/lakhansamani/coach-sophia-ai-anonymizer/pkg/pii"
)

const Version = "0.1.0"

// buildAnalyzer selects the primary detector per the configured mode.
// A nil analyzer is valid: the cascade then runs fallback-only.
func buildAnalyzer(cfg *config.Config) pii.Analyzer {
	switch cfg.AnalyzerMode {
	case config.ModeNone:
		log.Println("○ Primary detection disabled (fallback-only mode)")
		return nil

	case config.ModeLocal:
		nerCfg := pii.DefaultNERConfig()
		nerCfg.InitRetries = cfg.InitRetries
		nerCfg.InitBackoff = cfg.InitBackoff
		a := pii.NewNERAnalyzerWithFallback(nerCfg)
		if a.IsReady() {
			log.Println("✓ Primary detection enabled (local NER model)")
		} else {
			log.Println("○ Primary detection degraded (local model unavailable)")
		}
		return a

	case config.ModeRemote:
		a := pii.NewRemoteAnalyzer(cfg.RemoteAnalyzerURL, cfg.MaxAnalyzerCalls)
		if a.IsReady() {
			log.Printf("✓ Primary detection enabled (remote analyzer at %s)", cfg.RemoteAnalyzerURL)
		} else {
			log.Printf("○ Primary detection degraded (remote analyzer at %s not responding)", cfg.RemoteAnalyzerURL)
		}
		return a

	default: // ModeAuto
		if nerCfg := pii.AutoDetectNERConfig(); nerCfg != nil {
			nerCfg.InitRetries = cfg.InitRetries
			nerCfg.InitBackoff = cfg.InitBackoff
			a := pii.NewNERAnalyzerWithFallback(*nerCfg)
			if a.IsReady() {
				log.Println("✓ Primary detection enabled (auto-detected local NER model)")
				return a
			}
		}
		if cfg.RemoteAnalyzerURL != "" {
			a := pii.NewRemoteAnalyzer(cfg.RemoteAnalyzerURL, cfg.MaxAnalyzerCalls)
			if a.IsReady() {
				log.Printf("✓ Primary detection enabled (remote analyzer at %s)", cfg.RemoteAnalyzerURL)
				return a
			}
			log.Printf("○ Remote analyzer at %s not responding", cfg.RemoteAnalyzerURL)
		}
		log.Println("○ Primary detection disabled (no local model, no remote analyzer)")
		return nil
	}
}

// buildService wires config -> policy -> analyzer -> cascade.
func buildService(cfg *config.Config) *pii.Service {
	policy := pii.DefaultPolicy()
	if cfg.PolicyPath != "" {
		policy = pii.LoadPolicy(cfg.PolicyPath)
	}
	if err := policy.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: policy validation failed: %v", err)
	}

	return pii.NewService(pii.Options{
		Analyzer:           buildAnalyzer(cfg),
		Policy:             policy,
		Language:           cfg.Language,
		MinConfidence:      cfg.MinConfidence,
		DuplicateTolerance: cfg.DuplicateTolerance,
	})
}

// buildAuditSink assembles the configured sinks. Audit failures never block
// requests, so an unreachable Redis only costs the Redis trail.
func buildAuditSink(cfg *config.Config) audit.Sink {
	var sinks []audit.Sink

	if cfg.AuditLogPath != "" {
		fileSink, err := audit.NewFileSink(cfg.AuditLogPath)
		if err != nil {
			log.Printf("○ Audit file sink disabled: %v", err)
		} else {
			log.Printf("✓ Audit trail enabled (file: %s)", cfg.AuditLogPath)
			sinks = append(sinks, fileSink)
		}
	}

	if cfg.AuditRedisAddr != "" {
		redisSink, err := audit.NewRedisSink(cfg.AuditRedisAddr, cfg.AuditRedisKey, cfg.AuditMaxLen)
		if err != nil {
			log.Printf("○ Audit Redis sink disabled: %v", err)
		} else {
			log.Printf("✓ Audit trail enabled (redis: %s key=%s)", cfg.AuditRedisAddr, cfg.AuditRedisKey)
			sinks = append(sinks, redisSink)
		}
	}

	if len(sinks) == 0 {
		log.Println("○ Audit trail disabled")
		return audit.NopSink{}
	}
	return audit.NewMultiSink(sinks...)
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "3000"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "detect":
		if len(os.Args) < 3 {
			fmt.Println("Usage: anonymizer detect <text>")
			os.Exit(1)
		}
		runCLIDetect(strings.Join(os.Args[2:], " "))
	case "anonymize":
		if len(os.Args) < 3 {
			fmt.Println("Usage: anonymizer anonymize <text>")
			os.Exit(1)
		}
		runCLIAnonymize(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("Anonymizer v%s\n", Version)
		fmt.Println("Fail-safe PII detection and redaction gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Anonymizer v%s - Fail-safe PII detection and redaction\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  anonymizer serve [port]       Start HTTP server (default: 3000)")
	fmt.Println("  anonymizer detect <text>      Detect PII entities in text")
	fmt.Println("  anonymizer anonymize <text>   Redact PII from text")
	fmt.Println("  anonymizer version            Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  anonymizer serve 8080")
	fmt.Println("  anonymizer anonymize \"John Smith, SSN 123-45-6789\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  ANONYMIZER_ANALYZER_MODE  auto, local, remote, or none (default: auto)")
	fmt.Println("  ANONYMIZER_MODEL_PATH     Path to a local ONNX NER model directory")
	fmt.Println("  ANONYMIZER_REMOTE_URL     Base URL of a remote analyzer service")
	fmt.Println("  ANONYMIZER_POLICY_PATH    YAML policy overriding the built-in tables")
	fmt.Println("  ANONYMIZER_AUDIT_LOG      JSONL audit trail path (default: audit_events.jsonl)")
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runHTTPServer(port string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()

	service := buildService(cfg)
	sink := buildAuditSink(cfg)
	defer sink.Close()

	registry := patterns.Get()
	log.Printf("[STARTUP] pattern registry loaded: %d rules, %d entity types",
		registry.TotalRules(), len(registry.EntityTypes()))

	ruleCategories := make(map[string]int)
	for _, cat := range []patterns.Category{
		patterns.CategoryContact, patterns.CategoryFinancial, patterns.CategoryGovernmentID,
		patterns.CategoryMedical, patterns.CategoryTemporal, patterns.CategoryAge,
		patterns.CategoryBiometric, patterns.CategoryDevice, patterns.CategoryCertificate,
		patterns.CategoryCredential, patterns.CategoryDemographic,
	} {
		ruleCategories[string(cat)] = registry.CategoryCount(cat)
	}

	app := fiber.New(fiber.Config{
		AppName: "Anonymizer",
	})

	// Service info and entity inventory
	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":         "anonymizer",
			"version":         Version,
			"analyzer_ready":  service.MLActive(),
			"fallback_rules":  registry.TotalRules(),
			"rule_categories": ruleCategories,
			"entity_types":    registry.EntityTypes(),
		})
	})

	// Health check: the service is healthy even without the primary detector,
	// because the fallback layer always works.
	app.Get("/health", func(c fiber.Ctx) error {
		mode := "fallback_mode"
		if service.MLActive() {
			mode = "ml_based"
		}
		return c.JSON(fiber.Map{
			"status":          "ok",
			"version":         Version,
			"detection_mode":  mode,
			"compliance_mode": "fail_safe_active",
		})
	})

	// Detection only: degrades rather than fails, always returns a list.
	app.Post("/detect", func(c fiber.Ctx) error {
		var req struct {
			Text      string `json:"text"`
			Pseudonym string `json:"pseudonym"`
			Language  string `json:"language"` // optional, default from config
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Text == "" {
			return c.Status(400).JSON(fiber.Map{"error": "text field is required"})
		}

		start := time.Now()
		spans, method := service.DetectWithLanguage(c.Context(), req.Text, req.Pseudonym, req.Language)

		event := audit.NewEvent("detect")
		event.Method = string(method)
		event.SpanCount = len(spans)
		event.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
		sink.Record(event)

		if spans == nil {
			spans = []pii.CandidateSpan{}
		}
		return c.JSON(fiber.Map{
			"entities": spans,
			"method":   method,
		})
	})

	// Full cascade. A total failure returns 500 with an explicit error and
	// never the input text.
	app.Post("/anonymize", func(c fiber.Ctx) error {
		var req struct {
			Text      string `json:"text"`
			Pseudonym string `json:"pseudonym"`
			Language  string `json:"language"` // optional, default from config
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Text == "" {
			return c.Status(400).JSON(fiber.Map{"error": "text field is required"})
		}

		start := time.Now()
		result, err := service.AnonymizeWithLanguage(c.Context(), req.Text, req.Pseudonym, req.Language)

		event := audit.NewEvent("anonymize")
		event.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

		if err != nil {
			event.States = stateStrings([]pii.State{pii.StateFailed})
			event.Error = err.Error()
			sink.Record(event)
			return c.Status(500).JSON(fiber.Map{
				"error": "anonymization failed; no text is returned in place of a redacted result",
			})
		}

		event.Method = string(result.Method)
		event.Strategy = string(result.Strategy)
		event.SpanCount = len(result.Spans)
		event.States = stateStrings(result.States)
		sink.Record(event)

		spans := result.Spans
		if spans == nil {
			spans = []pii.RedactionSpan{}
		}
		return c.JSON(fiber.Map{
			"anonymized_text": result.Text,
			"spans":           spans,
			"method":          result.Method,
			"strategy":        result.Strategy,
			"pseudonym":       result.Pseudonym,
		})
	})

	log.Printf("Anonymizer HTTP server starting on :%s", port)
	log.Printf("Endpoints:")
	log.Printf("  GET  /           - Service info and entity inventory")
	log.Printf("  GET  /health     - Health check")
	log.Printf("  POST /detect     - Detect PII entities")
	log.Printf("  POST /anonymize  - Redact PII (fail-safe cascade)")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

func stateStrings(states []pii.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIDetect(text string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()
	service := buildService(cfg)

	spans, method := service.Detect(context.Background(), text, "")
	output, _ := json.MarshalIndent(fiber.Map{
		"entities": spans,
		"method":   method,
	}, "", "  ")
	fmt.Println(string(output))
}

func runCLIAnonymize(text string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()
	service := buildService(cfg)

	result, err := service.Anonymize(context.Background(), text, "")
	if err != nil {
		log.Fatalf("anonymization failed: %v", err)
	}

	output, _ := json.MarshalIndent(fiber.Map{
		"anonymized_text": result.Text,
		"spans":           result.Spans,
		"method":          result.Method,
		"strategy":        result.Strategy,
	}, "", "  ")
	fmt.Println(string(output))
}

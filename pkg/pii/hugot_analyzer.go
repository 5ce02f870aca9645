package pii

// hugot_analyzer.go - Local ML-based named-entity detection using Hugot/ONNX
//
// Wraps a token-classification (NER) pipeline as the cascade's primary
// detector. Runs fully local, no external API calls.
//
// Architecture:
// - ONNX Runtime backend when libonnxruntime is present, pure Go otherwise
// - Bounded retry with exponential backoff at initialization
// - Gracefully degrades to not-ready: the cascade then runs fallback-only
//
// Build:
// - Standard: go build (Go backend, slower but no native dependencies)
// - With ORT: go build -tags ORT (ONNX Runtime, faster)

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// NERConfig configures the local NER analyzer.
type NERConfig struct {
	// ModelPath is the local path to the ONNX model directory.
	ModelPath string

	// ModelName is the HuggingFace model name, used to download the model
	// when ModelPath does not exist.
	ModelName string

	// OnnxLibraryPath is the directory holding libonnxruntime.
	OnnxLibraryPath string

	// Timeout bounds a single inference call.
	Timeout time.Duration

	// InitRetries is the number of initialization attempts (default 3).
	InitRetries int

	// InitBackoff is the base backoff; attempt n waits InitBackoff * 2^n
	// (default 1s).
	InitBackoff time.Duration
}

// NER model presets, all token-classification models with CoNLL-style labels.
const (
	// ModelBertBaseNER is the dslim BERT-base NER model (108M params).
	// MIT license, the default choice.
	ModelBertBaseNER = "dslim/bert-base-NER"

	// ModelDistilbertNER is the dslim DistilBERT NER model (65M params).
	// Smaller and faster, slightly lower recall.
	ModelDistilbertNER = "dslim/distilbert-NER"
)

// nerModelSearchPaths lists local model locations in priority order.
var nerModelSearchPaths = []struct {
	path  string
	model string
}{
	{"./models/bert-base-ner", ModelBertBaseNER},
	{"./models/distilbert-ner", ModelDistilbertNER},
}

// DefaultNERConfig returns the default analyzer configuration.
func DefaultNERConfig() NERConfig {
	return NERConfig{
		ModelName:       ModelBertBaseNER,
		ModelPath:       "./models/bert-base-ner",
		OnnxLibraryPath: defaultOnnxPath(),
		Timeout:         30 * time.Second,
		InitRetries:     3,
		InitBackoff:     time.Second,
	}
}

// AutoDetectNERConfig finds an available local model and returns its
// configuration. Checks ANONYMIZER_MODEL_PATH first, then the standard
// locations. Returns nil when no model is present.
func AutoDetectNERConfig() *NERConfig {
	if envPath := os.Getenv("ANONYMIZER_MODEL_PATH"); envPath != "" {
		if _, err := os.Stat(filepath.Join(envPath, "model.onnx")); err == nil {
			log.Printf("[ML] using model from ANONYMIZER_MODEL_PATH: %s", envPath)
			cfg := DefaultNERConfig()
			cfg.ModelPath = envPath
			cfg.ModelName = ""
			return &cfg
		}
	}

	for _, m := range nerModelSearchPaths {
		if _, err := os.Stat(filepath.Join(m.path, "model.onnx")); err == nil {
			log.Printf("[ML] auto-detected model: %s at %s", m.model, m.path)
			cfg := DefaultNERConfig()
			cfg.ModelPath = m.path
			cfg.ModelName = m.model
			return &cfg
		}
	}

	log.Printf("[ML] no NER models found; checked:")
	for _, m := range nerModelSearchPaths {
		log.Printf("[ML]   - %s (looking for %s)", m.path, m.model)
	}
	log.Printf("[ML] set ANONYMIZER_MODEL_PATH or place a model under ./models to enable ML detection")
	return nil
}

// defaultOnnxPath returns the ONNX Runtime library directory for this host.
func defaultOnnxPath() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
	}
	return ""
}

// NERAnalyzer is the hugot-backed Analyzer implementation.
type NERAnalyzer struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
	mu       sync.RWMutex
	config   NERConfig
	ready    bool
}

// NewNERAnalyzer creates the analyzer and initializes it with bounded retry.
// Returns an error only after all attempts are exhausted.
func NewNERAnalyzer(cfg NERConfig) (*NERAnalyzer, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InitRetries <= 0 {
		cfg.InitRetries = 3
	}
	if cfg.InitBackoff <= 0 {
		cfg.InitBackoff = time.Second
	}

	a := &NERAnalyzer{config: cfg}

	var lastErr error
	for attempt := 0; attempt < cfg.InitRetries; attempt++ {
		if attempt > 0 {
			wait := cfg.InitBackoff * (1 << attempt)
			log.Printf("[ML] initialization attempt %d/%d failed, retrying in %s: %v",
				attempt, cfg.InitRetries, wait, lastErr)
			time.Sleep(wait)
		}
		if lastErr = a.initialize(); lastErr == nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("ner analyzer initialization failed after %d attempts: %w",
		cfg.InitRetries, lastErr)
}

// NewNERAnalyzerWithFallback never fails: on initialization error it returns
// a not-ready analyzer and the service runs in fallback-only mode.
func NewNERAnalyzerWithFallback(cfg NERConfig) *NERAnalyzer {
	a, err := NewNERAnalyzer(cfg)
	if err != nil {
		log.Printf("[WARN] NER analyzer unavailable, continuing in fallback-only mode: %v", err)
		return &NERAnalyzer{config: cfg}
	}
	return a
}

func (a *NERAnalyzer) initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, err := a.createSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	a.session = session

	modelPath, err := a.resolveModelPath()
	if err != nil {
		_ = a.session.Destroy()
		return fmt.Errorf("failed to resolve model path: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "pii-ner",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}

	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = a.session.Destroy()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	a.pipeline = pipeline
	a.ready = true
	log.Printf("[ML] NER analyzer initialized (model: %s)", modelPath)
	return nil
}

// createSession prefers the ONNX Runtime backend and falls back to pure Go.
func (a *NERAnalyzer) createSession() (*hugot.Session, error) {
	if a.config.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(
			options.WithOnnxLibraryPath(a.config.OnnxLibraryPath),
		)
		if err == nil {
			log.Printf("[ML] using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("[ML] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go session: %w", err)
	}
	log.Printf("[ML] using pure Go backend (slower, consider installing ONNX Runtime)")
	return session, nil
}

func (a *NERAnalyzer) resolveModelPath() (string, error) {
	if a.config.ModelPath != "" {
		if _, err := os.Stat(a.config.ModelPath); err == nil {
			return a.config.ModelPath, nil
		}
	}
	if a.config.ModelName == "" {
		return "", fmt.Errorf("no model path or name specified")
	}

	modelsDir := "./models"
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	log.Printf("[ML] downloading model %s...", a.config.ModelName)
	modelPath, err := hugot.DownloadModel(a.config.ModelName, modelsDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	log.Printf("[ML] model downloaded to %s", modelPath)
	return modelPath, nil
}

// IsReady reports whether the analyzer can serve inference calls.
func (a *NERAnalyzer) IsReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

// nerLabelMap converts CoNLL-style labels to the entity types the policy
// tables speak. MISC covers nationalities, events and similar group labels,
// which the classifier's exclusion set preserves.
var nerLabelMap = map[string]string{
	"PER":  "PERSON",
	"ORG":  "ORGANIZATION",
	"LOC":  "LOCATION",
	"MISC": "NORP",
}

// Analyze runs NER over the text and returns raw candidate spans above
// minConfidence. Offsets are validated against the text bounds; spans the
// model reports inconsistently are dropped rather than guessed at.
func (a *NERAnalyzer) Analyze(ctx context.Context, text, language string, minConfidence float64) ([]CandidateSpan, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.ready || a.pipeline == nil {
		return nil, fmt.Errorf("ner analyzer not ready")
	}
	if text == "" {
		return []CandidateSpan{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := a.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("ner inference failed: %w", err)
	}

	var spans []CandidateSpan
	for _, entities := range result.Entities {
		for _, e := range entities {
			score := float64(e.Score)
			if score < minConfidence {
				continue
			}
			start, end := int(e.Start), int(e.End)
			if start < 0 || end > len(text) || start >= end {
				log.Printf("[ML] dropping entity with out-of-range offsets [%d,%d) label=%s", start, end, e.Entity)
				continue
			}
			entityType, ok := nerLabelMap[strings.ToUpper(e.Entity)]
			if !ok {
				entityType = strings.ToUpper(e.Entity)
			}
			spans = append(spans, CandidateSpan{
				EntityType: entityType,
				Start:      start,
				End:        end,
				Text:       text[start:end],
				Score:      score,
				Method:     MethodPrimary,
			})
		}
	}
	return spans, nil
}

// Close releases the underlying session.
func (a *NERAnalyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ready = false
	if a.session != nil {
		if err := a.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return nil
}

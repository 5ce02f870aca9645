package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/lakhansamani/coach-sophia-ai-anonymizer/pkg/httputil"
)

// RemoteAnalyzer speaks the analyzer-service HTTP contract:
//
//	POST {base}/analyze  {"text": ..., "language": ..., "score_threshold": ...}
//	  -> [{"entity_type": ..., "start": ..., "end": ..., "score": ...}]
//	GET  {base}/health   -> 200 when ready
//
// Concurrency into the service is bounded by a semaphore; the service may be
// single-threaded and unbounded fan-in would only queue inside it.
type RemoteAnalyzer struct {
	baseURL string
	limiter *httputil.Semaphore
	ready   atomic.Bool
}

// NewRemoteAnalyzer builds an analyzer client and probes the service once.
// A failed probe leaves the analyzer not-ready; Probe can be called again
// later to recover.
func NewRemoteAnalyzer(baseURL string, maxConcurrent int) *RemoteAnalyzer {
	a := &RemoteAnalyzer{
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: httputil.NewSemaphore(maxConcurrent),
	}
	a.ready.Store(a.Probe())
	return a
}

// Probe checks service health and updates the ready flag.
func (a *RemoteAnalyzer) Probe() bool {
	resp, err := httputil.ProbeClient().Get(a.baseURL + "/health")
	if err != nil {
		a.ready.Store(false)
		return false
	}
	defer httputil.DrainAndClose(resp.Body)

	ok := resp.StatusCode == http.StatusOK
	a.ready.Store(ok)
	return ok
}

// IsReady reports the result of the last probe or call.
func (a *RemoteAnalyzer) IsReady() bool {
	return a.ready.Load()
}

type remoteAnalyzeRequest struct {
	Text           string  `json:"text"`
	Language       string  `json:"language"`
	ScoreThreshold float64 `json:"score_threshold"`
}

type remoteEntity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Analyze posts the text to the remote service and converts its entities to
// candidate spans. Any transport, status, or decode failure marks the
// analyzer not-ready and returns an error; there are no partial results.
func (a *RemoteAnalyzer) Analyze(ctx context.Context, text, language string, minConfidence float64) ([]CandidateSpan, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("analyzer busy: %w", err)
	}
	defer a.limiter.Release()

	payload, err := json.Marshal(remoteAnalyzeRequest{
		Text:           text,
		Language:       language,
		ScoreThreshold: minConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.InferenceClient().Do(req)
	if err != nil {
		a.ready.Store(false)
		return nil, fmt.Errorf("analyze call failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := httputil.ReadErrorBody(resp.Body)
		a.ready.Store(false)
		return nil, fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, string(body))
	}

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}

	var entities []remoteEntity
	if err := json.Unmarshal(body, &entities); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}

	a.ready.Store(true)
	spans := make([]CandidateSpan, 0, len(entities))
	for _, e := range entities {
		if e.Score < minConfidence {
			continue
		}
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		spans = append(spans, CandidateSpan{
			EntityType: strings.ToUpper(e.EntityType),
			Start:      e.Start,
			End:        e.End,
			Text:       text[e.Start:e.End],
			Score:      e.Score,
			Method:     MethodPrimary,
		})
	}
	return spans, nil
}

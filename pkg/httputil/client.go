// Package httputil provides shared HTTP utilities with connection pooling
// and safe response handling for the anonymizer gateway's outbound calls.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize is the default maximum size for reading HTTP response
// bodies. Remote analyzer responses scale with input text, never beyond this.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Shared transport with optimized connection pooling. Safe for concurrent
// use; reusing TCP connections matters when every request may call the
// remote analyzer.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for outbound operations.
type TimeoutTier int

const (
	// TierProbe for readiness probes against the remote analyzer (5s)
	TierProbe TimeoutTier = iota
	// TierAPI for standard API calls (30s)
	TierAPI
	// TierInference for analyzer inference calls on large texts (60s)
	TierInference
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierProbe:     5 * time.Second,
	TierAPI:       30 * time.Second,
	TierInference: 60 * time.Second,
}

// Singleton clients per tier - initialized once, reused everywhere.
var (
	clientProbe     *http.Client
	clientAPI       *http.Client
	clientInference *http.Client
	clientOnce      sync.Once
)

func initClients() {
	clientProbe = &http.Client{
		Timeout:   timeoutDurations[TierProbe],
		Transport: sharedTransport,
	}
	clientAPI = &http.Client{
		Timeout:   timeoutDurations[TierAPI],
		Transport: sharedTransport,
	}
	clientInference = &http.Client{
		Timeout:   timeoutDurations[TierInference],
		Transport: sharedTransport,
	}
}

// Client returns a shared HTTP client for the given timeout tier.
// These clients share a connection pool and should be used instead of
// creating new http.Client instances per request.
//
// Usage:
//
//	client := httputil.Client(httputil.TierAPI)
//	resp, err := client.Post(url, "application/json", body)
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierProbe:
		return clientProbe
	case TierAPI:
		return clientAPI
	case TierInference:
		return clientInference
	default:
		return clientAPI
	}
}

// ProbeClient returns a client with 5s timeout (health/readiness probes).
func ProbeClient() *http.Client {
	return Client(TierProbe)
}

// APIClient returns a client with 30s timeout (standard API calls).
func APIClient() *http.Client {
	return Client(TierAPI)
}

// InferenceClient returns a client with 60s timeout (analyzer inference).
func InferenceClient() *http.Client {
	return Client(TierInference)
}

// ReadResponseBody safely reads an HTTP response body with a size limit,
// protecting against unbounded responses from a misbehaving analyzer.
//
// Usage:
//
//	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads the response body for error messages with a smaller
// limit (1MB), since error messages shouldn't be large.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose properly drains and closes an HTTP response body.
// This ensures connection reuse in the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}

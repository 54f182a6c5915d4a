// Package remote provides an HTTP client for the external embedding service.
// The service contract is "vector of fixed dimensionality, or explicit
// failure"; the client additionally rejects silent wrong-dimensionality
// responses.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxInputChars caps text submitted to the embedding service.
const maxInputChars = 8000

// Config holds configuration for the remote embedder.
type Config struct {
	// Endpoint is the embedding service URL.
	Endpoint string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the expected vector dimensionality.
	Dimensions int

	// Timeout bounds one embedding call.
	Timeout time.Duration

	// RequestsPerSecond rate-limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
}

// Embedder calls the embedding service over HTTP.
type Embedder struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a remote embedder.
func New(cfg Config) *Embedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Embedder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed submits the text, capped to the input limit, and returns the vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	if runes := []rune(text); len(runes) > maxInputChars {
		text = string(runes[:maxInputChars])
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedder: rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: call service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedder: service returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}
	if e.cfg.Dimensions > 0 && len(parsed.Embedding) != e.cfg.Dimensions {
		return nil, fmt.Errorf("embedder: expected %d dimensions, got %d", e.cfg.Dimensions, len(parsed.Embedding))
	}
	return parsed.Embedding, nil
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Package embed wraps the text-embedding provider HTTP API. The provider
// contract is text in, fixed-dimension vector out; everything else (model
// choice, batching, resilience) is handled here.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/swasthyasetu/corpus-engine/pkg/fn"
	"github.com/swasthyasetu/corpus-engine/pkg/resilience"
)

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Opts configures the embedding client.
type Opts struct {
	BaseURL string
	APIKey  string
	Model   string
	// Dimensions is the expected vector size; responses with a different
	// dimension are rejected as malformed.
	Dimensions int
	// RequestTimeout bounds each HTTP call.
	RequestTimeout time.Duration
	// RatePerSecond throttles provider calls. Zero disables throttling.
	RatePerSecond float64
	// MaxBatch caps inputs per provider request; larger batches are split
	// into sequential calls.
	MaxBatch int
	Retry    fn.RetryOpts
}

// DefaultOpts returns client defaults for an OpenAI-compatible provider.
func DefaultOpts() Opts {
	return Opts{
		Model:          "text-embedding-3-small",
		Dimensions:     1536,
		RequestTimeout: 30 * time.Second,
		RatePerSecond:  10,
		MaxBatch:       100,
		Retry:          fn.DefaultRetry,
	}
}

// Client is an Embedder backed by an OpenAI-compatible /v1/embeddings
// endpoint, with rate limiting, retry, and a circuit breaker.
type Client struct {
	opts    Opts
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewClient creates an embedding client.
func NewClient(opts Opts) *Client {
	def := DefaultOpts()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = def.Dimensions
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = def.MaxBatch
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = def.Retry
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.RequestTimeout},
		limiter: rate.NewLimiter(limit, burstFor(opts.RatePerSecond)),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

func burstFor(perSecond float64) int {
	if perSecond <= 0 {
		return 1
	}
	b := int(perSecond)
	if b < 1 {
		b = 1
	}
	return b
}

// Dimensions returns the configured vector size.
func (c *Client) Dimensions() int { return c.opts.Dimensions }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns vectors for texts, in input order. Inputs beyond
// MaxBatch are split into sequential provider calls. The whole batch fails
// if any input fails: callers must not persist partial results.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range fn.Chunk(texts, c.opts.MaxBatch) {
		vecs, err := c.embedOnce(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedOnce runs a single provider request through the limiter, breaker,
// and retry policy.
func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed: rate wait: %w", err)
	}

	result := fn.Retry(ctx, c.opts.Retry, func(ctx context.Context) fn.Result[[][]float32] {
		var vecs [][]float32
		err := c.breaker.Call(ctx, func(ctx context.Context) error {
			var callErr error
			vecs, callErr = c.call(ctx, texts)
			return callErr
		})
		return fn.FromPair(vecs, err)
	})
	return result.Unwrap()
}

// call performs one provider request and validates the typed response.
func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.opts.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("embed: response has %d vectors for %d inputs", len(decoded.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embed: response index %d out of range", d.Index)
		}
		if len(d.Embedding) != c.opts.Dimensions {
			return nil, fmt.Errorf("embed: vector has %d dimensions, want %d", len(d.Embedding), c.opts.Dimensions)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embed: response missing vector for input %d", i)
		}
	}
	return out, nil
}

// Package gemini wraps the Google GenAI SDK as the engine's
// text-completion oracle. Callers pick one of two budgets: quick calls
// (context selection) carry a short timeout and no retries so they can
// gate the turn cheaply; detailed calls (reply generation) get a longer
// timeout and retries with capped exponential backoff.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultQuickTimeout    = 10 * time.Second
	defaultDetailedTimeout = 30 * time.Second
	defaultRetries         = 2

	backoffBase = 1 * time.Second
	backoffCap  = 5 * time.Second
)

// generator is the minimal generation seam over the SDK, defined here for
// testability.
type generator interface {
	generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Client is the oracle gateway.
type Client struct {
	gen             generator
	quickTimeout    time.Duration
	detailedTimeout time.Duration
	retries         int
}

type Option func(*Client)

// WithTimeouts overrides the quick and detailed call budgets. The quick
// budget should stay well below the detailed one.
func WithTimeouts(quick, detailed time.Duration) Option {
	return func(c *Client) {
		if quick > 0 {
			c.quickTimeout = quick
		}
		if detailed > 0 {
			c.detailedTimeout = detailed
		}
	}
}

// WithRetries sets how many times a detailed call is retried after the
// first failure.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// NewClient builds a Gemini-backed oracle. The model defaults to
// gemini-2.0-flash when empty.
func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c := &Client{
		gen:             &genaiGenerator{client: inner, model: model},
		quickTimeout:    defaultQuickTimeout,
		detailedTimeout: defaultDetailedTimeout,
		retries:         defaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newWithGenerator wires a custom generation seam; used by tests.
func newWithGenerator(gen generator, opts ...Option) *Client {
	c := &Client{
		gen:             gen,
		quickTimeout:    defaultQuickTimeout,
		detailedTimeout: defaultDetailedTimeout,
		retries:         defaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateQuick runs a single attempt on the short budget. Selection must
// fail fast: its caller has a deterministic fallback.
func (c *Client) GenerateQuick(ctx context.Context, prompt string) (string, error) {
	return c.run(ctx, prompt, quickConfig(), c.quickTimeout, 0)
}

// GenerateDetailed runs on the long budget with retries.
func (c *Client) GenerateDetailed(ctx context.Context, prompt string) (string, error) {
	return c.run(ctx, prompt, detailedConfig(), c.detailedTimeout, c.retries)
}

// run executes up to retries+1 attempts, each under its own deadline.
// Deadline failures stay errors.Is-able as context.DeadlineExceeded so the
// orchestrator can tag timeouts distinctly.
func (c *Client) run(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig, timeout time.Duration, retries int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := c.gen.generate(callCtx, prompt, cfg)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty response")
		}
		if err == nil {
			cancel()
			return text, nil
		}
		if callErr := callCtx.Err(); callErr != nil && !errors.Is(err, context.DeadlineExceeded) {
			// The SDK may swallow the deadline; restore it for callers.
			err = fmt.Errorf("%v: %w", err, callErr)
		}
		cancel()
		lastErr = err
		if attempt <= retries {
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return "", fmt.Errorf("gemini: aborted between attempts: %w", ctx.Err())
			}
		}
	}
	return "", fmt.Errorf("gemini: request failed after %d attempt(s): %w", retries+1, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

func quickConfig() *genai.GenerateContentConfig {
	cfg := baseConfig()
	cfg.Temperature = genai.Ptr[float32](0.5)
	cfg.MaxOutputTokens = 1024
	return cfg
}

func detailedConfig() *genai.GenerateContentConfig {
	cfg := baseConfig()
	cfg.Temperature = genai.Ptr[float32](0.8)
	cfg.MaxOutputTokens = 3072
	return cfg
}

func baseConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		TopK: genai.Ptr[float32](40),
		TopP: genai.Ptr[float32](0.95),
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	}
}

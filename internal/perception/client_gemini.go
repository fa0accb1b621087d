package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"modelsynth/internal/logging"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional endpoint override
	Timeout time.Duration
}

// GeminiClient implements types.Generator with the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model, timeout: config.Timeout}, nil
}

// Generate requests one completion. A candidate that did not stop cleanly is
// rejected.
func (c *GeminiClient) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	const op = "gemini completion"
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	logging.GenerationDebug("[Gemini] Generate: model=%s user_len=%d temperature=%.2f", c.model, len(user), temperature)

	t := float32(temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &t}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		return "", failure(op, err, geminiTransient(err))
	}
	if len(resp.Candidates) == 0 {
		return "", failure(op, errors.New("no candidates returned"), true)
	}
	if reason := resp.Candidates[0].FinishReason; reason != "" && reason != genai.FinishReasonStop {
		return "", failure(op, unfinished(string(reason)), false)
	}
	text := resp.Text()
	logging.Generation("[Gemini] Generate: completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

func geminiTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.Code)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

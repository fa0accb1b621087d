package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"modelsynth/internal/logging"
)

// OpenAIConfig holds configuration for an OpenAI-compatible chat completions
// endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	// MinInterval spaces consecutive requests.
	MinInterval time.Duration
}

// DefaultOpenAIConfig returns defaults for api.openai.com.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		Timeout:     2 * time.Minute,
		MaxTokens:   4096,
		MinInterval: 100 * time.Millisecond,
	}
}

// OpenAIClient implements types.Generator against /chat/completions.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIClient creates a client from config. Zero fields take the
// defaults.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	def := DefaultOpenAIConfig(config.APIKey)
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	return &OpenAIClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		maxTokens:  config.MaxTokens,
		timeout:    config.Timeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Every(config.MinInterval), 1),
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends one chat completion. Only a completion that stopped on its
// own is accepted.
func (c *OpenAIClient) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	const op = "openai completion"
	if c.apiKey == "" {
		return "", failure(op, errors.New("API key not configured"), false)
	}
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	logging.GenerationDebug("[OpenAI] Generate: model=%s system_len=%d user_len=%d temperature=%.2f",
		c.model, len(system), len(user), temperature)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", failure(op, err, true)
	}

	body, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", failure(op, fmt.Errorf("marshal request: %w", err), false)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", failure(op, fmt.Errorf("create request: %w", err), false)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", failure(op, fmt.Errorf("request failed: %w", err), true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failure(op, fmt.Errorf("read response: %w", err), true)
	}
	if resp.StatusCode != http.StatusOK {
		logging.GenerationWarn("[OpenAI] Generate: status %d", resp.StatusCode)
		return "", failure(op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), transientStatus(resp.StatusCode))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", failure(op, fmt.Errorf("parse response: %w", err), false)
	}
	if parsed.Error != nil {
		return "", failure(op, fmt.Errorf("API error: %s", parsed.Error.Message), false)
	}
	if len(parsed.Choices) == 0 {
		return "", failure(op, errors.New("no completion returned"), true)
	}
	choice := parsed.Choices[0]
	if choice.FinishReason != "" && choice.FinishReason != "stop" {
		return "", failure(op, unfinished(choice.FinishReason), false)
	}

	logging.Generation("[OpenAI] Generate: completed in %v response_len=%d", time.Since(start), len(choice.Message.Content))
	return choice.Message.Content, nil
}

package perception

import (
	"context"
	"fmt"

	"modelsynth/internal/config"
	"modelsynth/internal/logging"
	"modelsynth/internal/types"
)

// NewGenerator creates the generation backend selected by cfg.LLM.
func NewGenerator(ctx context.Context, cfg *config.Config) (types.Generator, error) {
	llm := cfg.LLM
	if llm.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q; set llm.api_key, OPENAI_API_KEY or GEMINI_API_KEY", llm.Provider)
	}
	switch Provider(llm.Provider) {
	case ProviderOpenAI, "":
		logging.Boot("generation backend: openai model=%s base_url=%s", llm.Model, llm.BaseURL)
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      llm.APIKey,
			BaseURL:     llm.BaseURL,
			Model:       llm.Model,
			Timeout:     cfg.GetLLMTimeout(),
			MinInterval: DefaultOpenAIConfig("").MinInterval,
		}), nil
	case ProviderGemini:
		logging.Boot("generation backend: gemini model=%s", llm.Model)
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:  llm.APIKey,
			Model:   llm.Model,
			Timeout: cfg.GetLLMTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", llm.Provider)
}

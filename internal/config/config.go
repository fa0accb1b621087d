package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all modelsynth configuration.
type Config struct {
	// LLM backend used to generate implementations
	LLM LLMConfig `yaml:"llm"`

	// Symbolic execution backend
	Execution ExecutionConfig `yaml:"execution"`

	// Attempt loop
	Run RunConfig `yaml:"run"`

	// Multi-function composition
	Composer ComposerConfig `yaml:"composer"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
}

// ExecutionConfig configures the symbolic execution backend.
type ExecutionConfig struct {
	Backend       string `yaml:"backend"` // docker, direct
	Image         string `yaml:"image"`
	ContainerName string `yaml:"container_name"`
	Timeout       string `yaml:"timeout"`
	ClangPath     string `yaml:"clang_path"`
	KLEEPath      string `yaml:"klee_path"`
	KTestToolPath string `yaml:"ktest_tool_path"`
	WorkDir       string `yaml:"work_dir"`
}

// RunConfig configures the attempt loop.
type RunConfig struct {
	Attempts         int     `yaml:"attempts"`
	RateLimit        float64 `yaml:"rate_limit"` // attempt starts per second, 0 = unlimited
	RetryBackoff     string  `yaml:"retry_backoff"`
	Concurrency      int     `yaml:"concurrency"`
	OutputDir        string  `yaml:"output_dir"`
	StorePath        string  `yaml:"store_path"`
	TemperatureSweep bool    `yaml:"temperature_sweep"`
}

// ComposerConfig configures how generated code is spliced.
type ComposerConfig struct {
	Locator string `yaml:"locator"` // text, treesitter
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "120s",
			Temperature: 1.0,
		},

		Execution: ExecutionConfig{
			Backend:       "docker",
			Image:         "klee/klee:3.0",
			ContainerName: "modelsynth-klee",
			Timeout:       "60s",
			ClangPath:     "clang",
			KLEEPath:      "klee",
			KTestToolPath: "ktest-tool",
			WorkDir:       "/tmp/modelsynth",
		},

		Run: RunConfig{
			Attempts:         10,
			RateLimit:        1,
			RetryBackoff:     "2s",
			Concurrency:      1,
			OutputDir:        "output",
			StorePath:        "output/results.db",
			TemperatureSweep: true,
		},

		Composer: ComposerConfig{
			Locator: "text",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// API key from environment, later entries win
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if url := os.Getenv("SYNTH_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if image := os.Getenv("SYNTH_KLEE_IMAGE"); image != "" {
		c.Execution.Image = image
	}
	if dir := os.Getenv("SYNTH_OUTPUT_DIR"); dir != "" {
		c.Run.OutputDir = dir
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetExecutionTimeout returns the per-program execution timeout.
func (c *Config) GetExecutionTimeout() time.Duration {
	return parseDuration(c.Execution.Timeout, 60*time.Second)
}

// GetRetryBackoff returns the pause before a transient retry.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDuration(c.Run.RetryBackoff, 2*time.Second)
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// ValidBackends lists all supported execution backends.
var ValidBackends = []string{"docker", "direct"}

// ValidLocators lists all supported splice locators.
var ValidLocators = []string{"text", "treesitter"}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}
	if !oneOf(c.LLM.Provider, ValidProviders) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid temperature: %v (must be in [0, 2])", c.LLM.Temperature)
	}
	if !oneOf(c.Execution.Backend, ValidBackends) {
		return fmt.Errorf("invalid execution backend: %s (valid: %v)", c.Execution.Backend, ValidBackends)
	}
	if !oneOf(c.Composer.Locator, ValidLocators) {
		return fmt.Errorf("invalid composer locator: %s (valid: %v)", c.Composer.Locator, ValidLocators)
	}
	if c.Run.Attempts < 1 {
		return fmt.Errorf("run.attempts must be at least 1, got %d", c.Run.Attempts)
	}
	if c.Run.Concurrency < 1 {
		return fmt.Errorf("run.concurrency must be at least 1, got %d", c.Run.Concurrency)
	}
	if c.Run.RateLimit < 0 {
		return fmt.Errorf("run.rate_limit must not be negative")
	}
	return nil
}

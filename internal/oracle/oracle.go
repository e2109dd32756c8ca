// Package oracle turns check images into raw field extractions by
// prompting a vision model and recovering structured fields from
// whatever shape the reply comes back in. Two providers are supported:
// the Anthropic API for hosted runs and a local Ollama endpoint for
// sites that keep check images on premises.
package oracle

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/check-recon/internal/consensus"
	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/resilience"
	"github.com/sells-group/check-recon/pkg/anthropic"
)

// Provider names accepted in config.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 1024

	// defaultTemperature keeps repeated reads of the same image from
	// collapsing into byte-identical replies.
	defaultTemperature = 0.2
)

// Config selects and tunes the extraction model.
type Config struct {
	// Provider is "anthropic" or "ollama".
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model" mapstructure:"model"`

	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// OllamaHost is the base URL of the Ollama server.
	OllamaHost string `yaml:"ollama_host" mapstructure:"ollama_host"`

	// APIKey comes from the environment, never from config files.
	APIKey string `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns the oracle defaults.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderAnthropic,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		OllamaHost:  defaultOllamaHost,
	}
}

// Validate checks the oracle configuration.
func (c Config) Validate() error {
	var errs []string

	switch c.Provider {
	case "", ProviderAnthropic, ProviderOllama:
	default:
		errs = append(errs, fmt.Sprintf("provider must be %q or %q, got %q",
			ProviderAnthropic, ProviderOllama, c.Provider))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, "max_tokens must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Sprintf("temperature must be in [0, 1], got %g", c.Temperature))
	}

	if len(errs) > 0 {
		return eris.Errorf("oracle: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Option adjusts an oracle implementation.
type Option func(*options)

type options struct {
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// WithRetry overrides the oracle retry schedule.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) { o.retry = &cfg }
}

// WithBreaker uses a caller-owned circuit breaker, typically one from the
// pipeline's per-service registry so the health endpoint can report it.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

func buildOptions(service string, opts []Option) (resilience.RetryConfig, *resilience.CircuitBreaker) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	retry := resilience.OracleRetryConfig()
	if o.retry != nil {
		retry = *o.retry
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(service, "extract")
	}

	breaker := o.breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return retry, breaker
}

// New builds the configured oracle.
func New(cfg Config, profile fields.Profile, opts ...Option) (consensus.Oracle, error) {
	switch cfg.Provider {
	case "", ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, eris.New("oracle: anthropic API key is not set")
		}
		return NewAnthropic(anthropic.NewClient(cfg.APIKey), profile, cfg, opts...), nil
	case ProviderOllama:
		return NewOllama(profile, cfg, opts...), nil
	default:
		return nil, eris.Errorf("oracle: unknown provider %q", cfg.Provider)
	}
}

// systemPrompt renders the extraction instructions for a field profile.
func systemPrompt(profile fields.Profile) string {
	var sb strings.Builder
	sb.WriteString("You read scanned personal checks. Extract these fields:\n\n")
	sb.WriteString(profile.PromptLines())
	sb.WriteString("\nRules:\n")
	sb.WriteString("- The check number is the short number in the top right corner. Never use the MICR routing or account numbers along the bottom edge.\n")
	sb.WriteString("- Use the numeric amount from the amount box, not the written-out line.\n")
	sb.WriteString("- Answer with an empty string for any field you cannot read.\n")
	sb.WriteString("\nReturn ONLY a JSON object with exactly those keys and string values. No markdown, no commentary.")
	return sb.String()
}

// userPrompt accompanies the image in every extraction message.
const userPrompt = "Read this check and return the JSON object."

var (
	_ consensus.Oracle = (*Anthropic)(nil)
	_ consensus.Oracle = (*Ollama)(nil)
	_ consensus.Oracle = (*Batch)(nil)
)

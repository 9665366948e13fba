// Package factory provides a centralized factory for creating LLM Provider
// instances by name. It imports all provider sub-packages and maps string
// names to their constructors, breaking the import cycle that would occur
// if this logic lived in the llm package directly.
package factory

import (
	"fmt"
	"time"

	"github.com/hounfour/gateway/llm"
	"github.com/hounfour/gateway/providers"
	claude "github.com/hounfour/gateway/providers/anthropic"
	"github.com/hounfour/gateway/providers/deepseek"
	"github.com/hounfour/gateway/providers/gemini"
	"github.com/hounfour/gateway/providers/glm"
	"github.com/hounfour/gateway/providers/kimi"
	"github.com/hounfour/gateway/providers/llama"
	"github.com/hounfour/gateway/providers/minimax"
	"github.com/hounfour/gateway/providers/openai"
	"github.com/hounfour/gateway/providers/openaicompat"
	"github.com/hounfour/gateway/providers/qwen"
	"go.uber.org/zap"
)

// genericBaseURLs holds default endpoints for vendors that speak the OpenAI
// Chat Completions wire format but don't have a bespoke adapter package.
var genericBaseURLs = map[string]string{
	"grok":    "https://api.x.ai/v1",
	"mistral": "https://api.mistral.ai/v1",
	"hunyuan": "https://api.hunyuan.cloud.tencent.com/v1",
	"doubao":  "https://ark.cn-beijing.volces.com/api/v3",
}

// ProviderConfig is the generic configuration accepted by the factory function.
// It uses a flat structure with an Extra map for provider-specific fields.
type ProviderConfig struct {
	APIKey  string         `json:"api_key" yaml:"api_key"`
	BaseURL string         `json:"base_url" yaml:"base_url"`
	Model   string         `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Extra   map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// NewProviderFromConfig creates a Provider instance based on the provider name
// and a generic ProviderConfig. It maps the name to the appropriate constructor.
//
// Supported names: openai, anthropic, claude, gemini, deepseek, qwen, glm,
// kimi, minimax, llama. Any other name falls back to a generic
// OpenAI-compatible adapter (grok, mistral, hunyuan, doubao have known
// default endpoints; anything else requires base_url in the config).
func NewProviderFromConfig(name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch name {
	case "openai":
		oc := providers.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		if cfg.Extra != nil {
			if v, ok := cfg.Extra["organization"].(string); ok {
				oc.Organization = v
			}
			if v, ok := cfg.Extra["use_responses_api"].(bool); ok {
				oc.UseResponsesAPI = v
			}
		}
		return openai.NewOpenAIProvider(oc, logger), nil

	case "anthropic", "claude":
		cc := providers.ClaudeConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return claude.NewClaudeProvider(cc, logger), nil

	case "gemini":
		gc := providers.GeminiConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return gemini.NewGeminiProvider(gc, logger), nil

	case "deepseek":
		dc := providers.DeepSeekConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return deepseek.NewDeepSeekProvider(dc, logger), nil

	case "qwen":
		qc := providers.QwenConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return qwen.NewQwenProvider(qc, logger), nil

	case "glm":
		gc := providers.GLMConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return glm.NewGLMProvider(gc, logger), nil

	case "kimi":
		kc := providers.KimiConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return kimi.NewKimiProvider(kc, logger), nil

	case "minimax":
		mc := providers.MiniMaxConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		return minimax.NewMiniMaxProvider(mc, logger), nil

	case "llama":
		lc := providers.LlamaConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}
		if cfg.Extra != nil {
			if v, ok := cfg.Extra["provider"].(string); ok {
				lc.Provider = v
			}
		}
		return llama.NewLlamaProvider(lc, logger), nil

	default:
		// Generic OpenAI-compatible provider: any name + base_url works.
		// Known aliases (grok, mistral, hunyuan, doubao) get a default
		// endpoint when base_url is omitted.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = genericBaseURLs[name]
		}
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q: built-in provider not found, and base_url is required for generic OpenAI-compatible provider", name)
		}
		oc := providers.OpenAICompatConfig{
			ProviderName: name,
			APIKey:       cfg.APIKey,
			BaseURL:      baseURL,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
		}
		logger.Info("creating generic OpenAI-compatible provider",
			zap.String("provider", name),
			zap.String("base_url", baseURL))
		return openaicompat.New(oc, logger), nil
	}
}

// SupportedProviders returns the list of built-in provider names.
// Any name not in this list will be treated as a generic OpenAI-compatible
// provider; grok, mistral, hunyuan, and doubao additionally have default
// endpoints wired in, so base_url is optional for those.
func SupportedProviders() []string {
	return []string{
		"openai", "anthropic", "claude", "gemini", "deepseek",
		"qwen", "glm", "kimi", "minimax", "llama",
		"grok", "mistral", "hunyuan", "doubao",
	}
}

// RegistryConfig describes multiple providers and which one is the default.
// Use this with NewRegistryFromConfig to build a ProviderRegistry in one call.
type RegistryConfig struct {
	// Default is the name of the default provider (must match a key in Providers).
	Default string `json:"default" yaml:"default"`
	// Providers maps provider names to their configurations.
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
}

// NewRegistryFromConfig creates a ProviderRegistry populated with all providers
// defined in the RegistryConfig. It sets the default provider if specified.
// Any provider that fails to initialize is logged as a warning and skipped.
func NewRegistryFromConfig(cfg RegistryConfig, logger *zap.Logger) (*llm.ProviderRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := llm.NewProviderRegistry()

	for name, pcfg := range cfg.Providers {
		p, err := NewProviderFromConfig(name, pcfg, logger)
		if err != nil {
			logger.Warn("skipping provider: initialization failed",
				zap.String("provider", name),
				zap.Error(err))
			continue
		}
		reg.Register(name, p)
		logger.Info("provider registered", zap.String("provider", name))
	}

	if cfg.Default != "" {
		if err := reg.SetDefault(cfg.Default); err != nil {
			return reg, fmt.Errorf("failed to set default provider %q: %w", cfg.Default, err)
		}
	}

	return reg, nil
}

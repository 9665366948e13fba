// =============================================================================
// hounfour configuration loader
// =============================================================================
// Unified config loading: system defaults -> project YAML file -> env vars
// -> CLI flag overrides (spec §6's four-layer merge). Env-var layering keeps
// the teacher's reflection-based Loader/setFieldsFromEnv mechanism; CLI
// flags are applied last by cmd/hounfour itself via ApplyFlagOverrides.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hounfour/gateway/llm/circuitbreaker"
	"github.com/hounfour/gateway/metering"
	"github.com/hounfour/gateway/routing"
)

// =============================================================================
// Core configuration structure
// =============================================================================

// Document is the on-disk shape: a YAML document with everything nested
// under a top-level "hounfour" key (spec §6).
type Document struct {
	Hounfour Config `yaml:"hounfour"`
}

// Config is hounfour's complete merged configuration.
type Config struct {
	Providers map[string]ProviderEntry    `yaml:"providers" env:"PROVIDERS"`
	Aliases   map[string]string           `yaml:"aliases" env:"ALIASES"`
	Agents    map[string]routing.AgentBinding `yaml:"agents" env:"AGENTS"`
	Routing   RoutingSection              `yaml:"routing" env:"ROUTING"`
	Metering  MeteringSection             `yaml:"metering" env:"METERING"`
	Features  FeatureFlags                `yaml:"feature_flags" env:"FEATURE_FLAGS"`

	SecretEnvAllowlist    []string `yaml:"secret_env_allowlist" env:"SECRET_ENV_ALLOWLIST"`
	SecretPaths           []string `yaml:"secret_paths" env:"SECRET_PATHS"`
	SecretCommandsEnabled bool     `yaml:"secret_commands_enabled" env:"SECRET_COMMANDS_ENABLED"`

	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ModelEntry is one provider-advertised model and the capability flags it
// satisfies (routing §4.3 consults these to filter fallback/downgrade
// candidates by required capability).
type ModelEntry struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
}

// ProviderTimeouts bounds a single provider's connect/request round trip.
type ProviderTimeouts struct {
	ConnectMs int `yaml:"connect_ms"`
	RequestMs int `yaml:"request_ms"`
}

// ProviderEntry is one providers.<name> entry (spec §6: "{type, endpoint,
// auth, models, timeouts}").
type ProviderEntry struct {
	Type     string           `yaml:"type"`
	Endpoint string           `yaml:"endpoint"`
	Auth     string           `yaml:"auth"` // credential id this provider authenticates with
	Models   []ModelEntry     `yaml:"models"`
	Timeouts ProviderTimeouts `yaml:"timeouts"`
}

// RoutingSection is routing.{fallback,downgrade,rate_limits,circuit_breaker}.
// Aliases lives at the document's top level (spec §6), not nested here;
// RoutingConfig() assembles both into the routing package's RoutingConfig.
type RoutingSection struct {
	Fallback       map[string][]string             `yaml:"fallback"`
	Downgrade      map[string][]string             `yaml:"downgrade"`
	RateLimits     map[string]metering.DefaultRateLimit `yaml:"rate_limits"`
	CircuitBreaker circuitbreaker.Config            `yaml:"circuit_breaker"`
	MaxAliasDepth  int                              `yaml:"max_alias_depth"`
}

// MeteringBudget is metering.budget.{daily_micro_usd,warn_at_percent,on_exceeded}.
type MeteringBudget struct {
	DailyMicroUSD int64             `yaml:"daily_micro_usd"`
	WarnAtPercent int64             `yaml:"warn_at_percent"`
	OnExceeded    metering.OnExceeded `yaml:"on_exceeded"`
}

// MeteringSection is metering.{enabled,budget}.
type MeteringSection struct {
	Enabled bool           `yaml:"enabled"`
	Budget  MeteringBudget `yaml:"budget"`
}

// ContextFilterMode is feature_flags.context_filtering: either the boolean
// false (filtering disabled) or one of the string enum values "audit"
// (log would-be reductions without applying them) / "enforce" (apply).
type ContextFilterMode string

const (
	ContextFilteringOff     ContextFilterMode = "off"
	ContextFilteringAudit   ContextFilterMode = "audit"
	ContextFilteringEnforce ContextFilterMode = "enforce"
)

// UnmarshalYAML accepts a YAML bool (false disables filtering, true selects
// enforce) or one of the strings "audit", "enforce", "off" or "false".
func (m *ContextFilterMode) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		if b {
			*m = ContextFilteringEnforce
		} else {
			*m = ContextFilteringOff
		}
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("context_filtering: %w", err)
	}
	switch s {
	case "audit":
		*m = ContextFilteringAudit
	case "enforce":
		*m = ContextFilteringEnforce
	case "off", "false":
		*m = ContextFilteringOff
	default:
		return fmt.Errorf("context_filtering: invalid value %q (want false, audit, or enforce)", s)
	}
	return nil
}

// FeatureFlags is feature_flags: booleans plus the string-valued
// context_filtering mode.
type FeatureFlags struct {
	ContextFiltering ContextFilterMode `yaml:"context_filtering"`

	// HealthPrefetch enables routing.ProbePossibleCandidates (concurrent
	// fallback-chain health warm-up) instead of probing candidates one at
	// a time during the sequential chain walk.
	HealthPrefetch bool `yaml:"health_prefetch"`

	// InProcessRateLimitFastPath enables metering.RateLimiter's x/time/rate
	// in-process bucket as a pre-check before the flock-persisted state read.
	InProcessRateLimitFastPath bool `yaml:"in_process_rate_limit_fast_path"`
}

// LogConfig configures zap (teacher's logging stack, unchanged in shape).
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OTLP exporter.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RoutingConfig assembles the routing package's RoutingConfig from the
// document's top-level aliases plus the nested routing section.
func (c *Config) RoutingConfig() routing.RoutingConfig {
	return routing.RoutingConfig{
		Aliases:       c.Aliases,
		Fallback:      c.Routing.Fallback,
		Downgrade:     c.Routing.Downgrade,
		MaxAliasDepth: c.Routing.MaxAliasDepth,
	}
}

// AgentBindings returns the configured agents as a slice of
// routing.AgentBinding, with each binding's Agent field set from its map
// key (the key is not repeated inside the YAML entry).
func (c *Config) AgentBindings() []routing.AgentBinding {
	out := make([]routing.AgentBinding, 0, len(c.Agents))
	for name, b := range c.Agents {
		b.Agent = name
		out = append(out, b)
	}
	return out
}

// ProviderModels flattens Providers into the "provider:model-id" ->
// routing.ProviderModel registry WalkFallbackChain/ValidateBindings expect.
func (c *Config) ProviderModels() map[string]routing.ProviderModel {
	out := make(map[string]routing.ProviderModel)
	for name, entry := range c.Providers {
		for _, m := range entry.Models {
			caps := make(map[string]bool, len(m.Capabilities))
			for _, capName := range m.Capabilities {
				caps[capName] = true
			}
			out[name+":"+m.ID] = routing.ProviderModel{Provider: name, ModelID: m.ID, Capabilities: caps}
		}
	}
	return out
}

// BudgetConfig assembles metering.BudgetConfig from the metering section
// (spec §6: metering.enabled sits beside budget, not inside it).
func (c *Config) BudgetConfig() metering.BudgetConfig {
	return metering.BudgetConfig{
		Enabled:       c.Metering.Enabled,
		DailyMicroUSD: c.Metering.Budget.DailyMicroUSD,
		WarnAtPercent: c.Metering.Budget.WarnAtPercent,
		OnExceeded:    c.Metering.Budget.OnExceeded,
	}
}

// =============================================================================
// Loader
// =============================================================================

// Loader is the builder-pattern config loader.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a loader defaulted to the HOUNFOUR env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "HOUNFOUR",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the project YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a post-load validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load runs the merge: system defaults -> YAML file -> env vars. CLI flag
// overrides are layered on top by the caller via ApplyFlagOverrides, after
// Load returns, since flags are parsed by cobra at the command layer.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile decodes the YAML file directly into cfg (already seeded
// with defaults by DefaultConfig): yaml.v3 only touches the fields a key
// is actually present for, so an omitted section (or an omitted scalar
// inside a present section, e.g. "metering:" with no "enabled:") leaves
// cfg's existing default value untouched rather than zeroing it out.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	doc := Document{Hounfour: *cfg}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	*cfg = doc.Hounfour
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recurses into struct fields tagged `env:"..."`, applying
// HOUNFOUR_<PREFIX>_<TAG> overrides. Maps (providers, agents, aliases,
// fallback/downgrade tables) aren't reachable this way by design: their
// shape is too nested for a flat env var to express cleanly, so they're
// file-only plus CLI-flag overrides for the handful spec §6 names.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads the config at path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads config from defaults + env vars only, with no project file.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// FlagOverrides is the subset of parsed CLI flags that can override config
// values, applied after Load as the fourth and final merge layer.
type FlagOverrides struct {
	LogLevel       string
	ModelOverride  string // not a Config field: threaded through to routing.Resolve by the invoke command
	BudgetOverride int64  // --budget-daily-micro-usd
}

// ApplyFlagOverrides layers non-empty/non-zero flag values over cfg,
// completing the four-layer merge (spec §3: defaults -> file -> env -> CLI
// flags, CLI flags win).
func ApplyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.BudgetOverride > 0 {
		cfg.Metering.Budget.DailyMicroUSD = flags.BudgetOverride
	}
}

// Validate checks the merged config for internal consistency beyond what
// individual component validators (routing.ValidateChains,
// routing.ValidateBindings) already cover.
func (c *Config) Validate() error {
	var errs []string

	switch c.Features.ContextFiltering {
	case ContextFilteringOff, ContextFilteringAudit, ContextFilteringEnforce:
	default:
		errs = append(errs, fmt.Sprintf("feature_flags.context_filtering: invalid value %q", c.Features.ContextFiltering))
	}

	if c.Metering.Enabled {
		if c.Metering.Budget.DailyMicroUSD <= 0 {
			errs = append(errs, "metering.budget.daily_micro_usd must be positive when metering is enabled")
		}
		if c.Metering.Budget.WarnAtPercent <= 0 || c.Metering.Budget.WarnAtPercent > 100 {
			errs = append(errs, "metering.budget.warn_at_percent must be in (0, 100]")
		}
	}

	for name, p := range c.Providers {
		if p.Endpoint == "" && p.Type != "native" {
			errs = append(errs, fmt.Sprintf("providers.%s: endpoint required for non-native provider type", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// =============================================================================
// hounfour default configuration
// =============================================================================
package config

import (
	"time"

	"github.com/hounfour/gateway/llm/circuitbreaker"
	"github.com/hounfour/gateway/metering"
	"github.com/hounfour/gateway/routing"
)

// DefaultConfig returns a config with every sub-section defaulted. A
// project file only needs to override what it wants to change; Loader.Load
// starts from this and overlays the file, then env vars, on top.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderEntry{},
		Aliases:   map[string]string{},
		Agents:    map[string]routing.AgentBinding{},
		Routing:   DefaultRoutingSection(),
		Metering:  DefaultMeteringSection(),
		Features:  DefaultFeatureFlags(),

		SecretEnvAllowlist:    []string{},
		SecretPaths:           []string{},
		SecretCommandsEnabled: false,

		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultRoutingSection mirrors the Python original's defaults: no chains
// configured, a generous alias-depth cap, and the teacher's circuit
// breaker defaults (5 failures / 30s call timeout / 60s reset / 3 half-open
// probes).
func DefaultRoutingSection() RoutingSection {
	return RoutingSection{
		Fallback:   map[string][]string{},
		Downgrade:  map[string][]string{},
		RateLimits: map[string]metering.DefaultRateLimit{},
		CircuitBreaker: circuitbreaker.Config{
			Threshold:        5,
			Timeout:          30 * time.Second,
			ResetTimeout:     60 * time.Second,
			HalfOpenMaxCalls: 3,
		},
		MaxAliasDepth: 16,
	}
}

// DefaultMeteringSection mirrors metering.DefaultBudgetConfig: metering on
// by default, $500 daily ceiling, warn at 80%, downgrade on exceed.
func DefaultMeteringSection() MeteringSection {
	d := metering.DefaultBudgetConfig()
	return MeteringSection{
		Enabled: d.Enabled,
		Budget: MeteringBudget{
			DailyMicroUSD: d.DailyMicroUSD,
			WarnAtPercent: d.WarnAtPercent,
			OnExceeded:    d.OnExceeded,
		},
	}
}

// DefaultFeatureFlags defaults context filtering to enforced (fail-closed:
// an unconfigured trust scope still gets the all-full default from
// contextfilter.DefaultTrustScopes, so "enforce" costs nothing until a
// permissions file actually restricts something) and both opt-in
// performance flags off, matching their opt-in framing in spec §4.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		ContextFiltering:           ContextFilteringEnforce,
		HealthPrefetch:             false,
		InProcessRateLimitFastPath: false,
	}
}

// DefaultLogConfig configures zap's default production-leaning shape.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig disables OTLP export until a project opts in.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "hounfour",
		SampleRate:   0.1,
	}
}

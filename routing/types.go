// Package routing implements the agent-binding resolver (C3, spec §4.3)
// and the fallback/downgrade chain walker (C4, spec §4.4).
//
// Grounded on
// _examples/original_source/.claude/adapters/loa_cheval/routing/chains.py
// (chain walking) and spec §4.3's resolve() contract (alias resolution).
package routing

import (
	"fmt"

	"github.com/hounfour/gateway/types"
)

// NativeRuntimeSentinel is the model reference value meaning "this agent
// runs inside the calling process's own native runtime," never dispatched
// to a remote provider.
const NativeRuntimeSentinel = "native"

// ModelRef identifies a concrete provider:model pair.
type ModelRef struct {
	Provider string
	ModelID  string
}

func (r ModelRef) String() string { return r.Provider + ":" + r.ModelID }

func (r ModelRef) IsNative() bool { return r.Provider == "" && r.ModelID == NativeRuntimeSentinel }

// AgentBinding is one agent's routing configuration: its default model
// reference (or alias), whether it requires the native runtime, and the
// capability flags it needs satisfied wherever it's dispatched.
type AgentBinding struct {
	Agent                 string   `yaml:"-"`
	DefaultModelRef       string   `yaml:"default_model_ref"`
	RequiresNativeRuntime bool     `yaml:"requires_native_runtime"`
	RequiredCapabilities  []string `yaml:"required_capabilities"`
}

// ProviderModel is one provider's registered model entry, carrying the
// capability flags it satisfies.
type ProviderModel struct {
	Provider     string          `yaml:"-"`
	ModelID      string          `yaml:"id"`
	Capabilities map[string]bool `yaml:"capabilities"`
}

// RoutingConfig is the subset of the merged config this package consults:
// the alias table (keyed by alias), the fallback chains (keyed by
// provider:model-id) and the downgrade chains (keyed by alias)
// (spec §6 config layout, routing.aliases /
// routing.fallback / routing.downgrade).
type RoutingConfig struct {
	Aliases       map[string]string   `yaml:"aliases"`        // alias -> "provider:model-id" or another alias
	Fallback      map[string][]string `yaml:"fallback"`       // "provider:model-id" -> ordered alias/ref list
	Downgrade     map[string][]string `yaml:"downgrade"`      // alias -> ordered alias/ref list
	MaxAliasDepth int                 `yaml:"max_alias_depth"`
}

func (c RoutingConfig) maxDepth() int {
	if c.MaxAliasDepth > 0 {
		return c.MaxAliasDepth
	}
	return 16
}

// HealthProber reports whether a resolved candidate is currently healthy
// (spec §4.4's fallback walk consults this; the downgrade walk does not).
type HealthProber interface {
	Healthy(ref ModelRef) bool
}

// ResolveAlias walks the alias table from ref up to the configured depth
// cap, tracking visited aliases to detect cycles, and returns the final
// provider:model-id it bottoms out at. A reference already in
// "provider:model-id" form resolves to itself immediately.
func ResolveAlias(ref string, cfg RoutingConfig) (ModelRef, error) {
	seen := make(map[string]bool)
	current := ref
	for depth := 0; depth < cfg.maxDepth(); depth++ {
		if pm, ok := splitProviderModel(current); ok {
			return pm, nil
		}
		if seen[current] {
			return ModelRef{}, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("alias cycle detected at %q", current))
		}
		seen[current] = true

		next, ok := cfg.Aliases[current]
		if !ok {
			return ModelRef{}, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("unresolvable alias %q", current))
		}
		current = next
	}
	return ModelRef{}, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("alias depth cap exceeded resolving %q", ref))
}

func splitProviderModel(ref string) (ModelRef, bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return ModelRef{Provider: ref[:i], ModelID: ref[i+1:]}, true
		}
	}
	return ModelRef{}, false
}

// Resolve implements C3's resolve(agent, cli_model_override?): selects the
// model reference (CLI override wins over the binding's default),
// rejects a native-runtime-required binding that resolves anywhere else,
// and resolves the reference to a concrete provider:model pair.
func Resolve(binding AgentBinding, cliModelOverride string, cfg RoutingConfig) (ModelRef, error) {
	ref := binding.DefaultModelRef
	if cliModelOverride != "" {
		ref = cliModelOverride
	}

	if binding.RequiresNativeRuntime && ref != NativeRuntimeSentinel {
		return ModelRef{}, types.NewError(types.ErrNativeRuntimeRequired,
			fmt.Sprintf("agent %q requires native runtime, got %q", binding.Agent, ref))
	}
	if ref == NativeRuntimeSentinel {
		return ModelRef{ModelID: NativeRuntimeSentinel}, nil
	}

	return ResolveAlias(ref, cfg)
}

// ValidationError is one resolve/capability failure collected by
// ValidateBindings, which gathers every error rather than stopping at the
// first (spec §4.3).
type ValidationError struct {
	Agent   string
	Message string
}

func (e ValidationError) Error() string { return fmt.Sprintf("agent %q: %s", e.Agent, e.Message) }

// ValidateBindings checks every binding resolves to a registered provider
// model with all required-true capabilities present, returning every
// violation found (not just the first).
func ValidateBindings(bindings []AgentBinding, cfg RoutingConfig, providerModels map[string]ProviderModel) []ValidationError {
	var errs []ValidationError
	for _, b := range bindings {
		ref, err := Resolve(b, "", cfg)
		if err != nil {
			errs = append(errs, ValidationError{Agent: b.Agent, Message: err.Error()})
			continue
		}
		if ref.IsNative() {
			continue
		}
		pm, ok := providerModels[ref.String()]
		if !ok {
			errs = append(errs, ValidationError{Agent: b.Agent, Message: fmt.Sprintf("%s not registered", ref)})
			continue
		}
		for _, capName := range b.RequiredCapabilities {
			if !pm.Capabilities[capName] {
				errs = append(errs, ValidationError{Agent: b.Agent, Message: fmt.Sprintf("missing required capability %q on %s", capName, ref)})
			}
		}
	}
	return errs
}

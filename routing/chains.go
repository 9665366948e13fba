package routing

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hounfour/gateway/types"
)

// Rejection records why a fallback/downgrade candidate was skipped, so an
// exhausted chain can report its full rejection list rather than just the
// last failure.
type Rejection struct {
	Candidate string
	Reason    string
}

// ProviderUnavailableError is raised when a fallback chain is exhausted
// without finding a survivor.
type ProviderUnavailableError struct {
	Original   ModelRef
	Rejections []Rejection
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("no fallback available for %s (%d candidates rejected)", e.Original, len(e.Rejections))
}

func capabilitiesSatisfied(required []string, pm ProviderModel, ok bool) bool {
	if !ok {
		return len(required) == 0
	}
	for _, c := range required {
		if !pm.Capabilities[c] {
			return false
		}
	}
	return true
}

// visitedKey renders a set membership check against the visited set shared
// across a chain walk (cycle prevention).
func visitedKey(ref ModelRef) string { return ref.String() }

// WalkFallbackChain consults routing.fallback[original.String()] and
// returns the first candidate that resolves, isn't already visited,
// satisfies the binding's required capabilities, matches the binding's
// native-runtime requirement, and (if prober is non-nil) is healthy.
// Exhaustion returns *ProviderUnavailableError with every rejection
// collected (spec §4.4).
func WalkFallbackChain(original ModelRef, binding AgentBinding, cfg RoutingConfig, providerModels map[string]ProviderModel, prober HealthProber, visited map[string]bool) (ModelRef, error) {
	if visited == nil {
		visited = make(map[string]bool)
	}
	visited[visitedKey(original)] = true

	chain := cfg.Fallback[original.String()]
	var rejections []Rejection

	for _, candidateRef := range chain {
		resolved, err := ResolveAlias(candidateRef, cfg)
		if err != nil {
			rejections = append(rejections, Rejection{Candidate: candidateRef, Reason: err.Error()})
			continue
		}

		if visited[visitedKey(resolved)] {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "already visited (cycle)"})
			continue
		}

		if binding.RequiresNativeRuntime != resolved.IsNative() {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "native runtime requirement mismatch"})
			continue
		}

		pm, ok := providerModels[resolved.String()]
		if !capabilitiesSatisfied(binding.RequiredCapabilities, pm, ok) {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "missing required capability"})
			continue
		}

		if prober != nil && !resolved.IsNative() && !prober.Healthy(resolved) {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "unhealthy"})
			continue
		}

		visited[visitedKey(resolved)] = true
		return resolved, nil
	}

	return ModelRef{}, &ProviderUnavailableError{Original: original, Rejections: rejections}
}

// cachingProber wraps a HealthProber with a precomputed result map so a
// sequential chain walk doesn't pay a live probe round trip for candidates
// already resolved by ProbePossibleCandidates. A candidate absent from the
// cache falls through to the wrapped prober.
type cachingProber struct {
	cache   map[string]bool
	wrapped HealthProber
}

func (c *cachingProber) Healthy(ref ModelRef) bool {
	if healthy, ok := c.cache[ref.String()]; ok {
		return healthy
	}
	if c.wrapped != nil {
		return c.wrapped.Healthy(ref)
	}
	return true
}

// ProbePossibleCandidates resolves and health-probes every entry of chain
// concurrently via errgroup, returning a HealthProber a caller can pass to
// WalkFallbackChain in place of prober so the (still strictly sequential,
// order-preserving) candidate scan reads already-warm results instead of
// issuing one live probe per candidate in series. Unresolvable entries are
// skipped; native-runtime candidates are never probed (they don't go over
// the wire).
func ProbePossibleCandidates(ctx context.Context, chain []string, cfg RoutingConfig, prober HealthProber) HealthProber {
	cache := make(map[string]bool)
	if prober == nil || len(chain) == 0 {
		return &cachingProber{cache: cache, wrapped: prober}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, candidateRef := range chain {
		candidateRef := candidateRef
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			resolved, err := ResolveAlias(candidateRef, cfg)
			if err != nil || resolved.IsNative() {
				return nil
			}
			healthy := prober.Healthy(resolved)
			mu.Lock()
			cache[resolved.String()] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &cachingProber{cache: cache, wrapped: prober}
}

// findDowngradeChain linear-scans the downgrade map's aliases to find which
// one resolves to original, mirroring the Python original's
// _find_downgrade_chain (the downgrade map is keyed by alias, not by the
// resolved provider:model-id, unlike the fallback map).
func findDowngradeChain(original ModelRef, cfg RoutingConfig) ([]string, bool) {
	for alias, chain := range cfg.Downgrade {
		resolved, err := ResolveAlias(alias, cfg)
		if err != nil {
			continue
		}
		if resolved == original {
			return chain, true
		}
	}
	return nil, false
}

// WalkDowngradeChain applies the same capability/visited filtering as
// WalkFallbackChain but without a health check: downgrading to a cheaper
// model is cost-motivated, not availability-motivated, so an unhealthy
// provider is still an acceptable downgrade target.
func WalkDowngradeChain(original ModelRef, binding AgentBinding, cfg RoutingConfig, providerModels map[string]ProviderModel, visited map[string]bool) (ModelRef, error) {
	if visited == nil {
		visited = make(map[string]bool)
	}
	visited[visitedKey(original)] = true

	chain, ok := findDowngradeChain(original, cfg)
	if !ok {
		return ModelRef{}, &ProviderUnavailableError{Original: original, Rejections: []Rejection{{Candidate: original.String(), Reason: "no downgrade chain configured"}}}
	}

	var rejections []Rejection
	for _, candidateRef := range chain {
		resolved, err := ResolveAlias(candidateRef, cfg)
		if err != nil {
			rejections = append(rejections, Rejection{Candidate: candidateRef, Reason: err.Error()})
			continue
		}

		if visited[visitedKey(resolved)] {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "already visited (cycle)"})
			continue
		}

		if binding.RequiresNativeRuntime != resolved.IsNative() {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "native runtime requirement mismatch"})
			continue
		}

		pm, ok := providerModels[resolved.String()]
		if !capabilitiesSatisfied(binding.RequiredCapabilities, pm, ok) {
			rejections = append(rejections, Rejection{Candidate: resolved.String(), Reason: "missing required capability"})
			continue
		}

		visited[visitedKey(resolved)] = true
		return resolved, nil
	}

	return ModelRef{}, &ProviderUnavailableError{Original: original, Rejections: rejections}
}

// ValidateChains detects intra-chain duplicates and unresolvable entries at
// config-load time, across both the fallback and downgrade tables.
func ValidateChains(cfg RoutingConfig) []error {
	var errs []error
	check := func(source string, chain []string) {
		seen := make(map[string]bool)
		for _, ref := range chain {
			if seen[ref] {
				errs = append(errs, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("%s: duplicate entry %q", source, ref)))
				continue
			}
			seen[ref] = true
			if _, err := ResolveAlias(ref, cfg); err != nil {
				errs = append(errs, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("%s: unresolvable entry %q: %v", source, ref, err)))
			}
		}
	}

	for key, chain := range cfg.Fallback {
		check("fallback["+key+"]", chain)
	}
	for key, chain := range cfg.Downgrade {
		check("downgrade["+key+"]", chain)
	}
	return errs
}

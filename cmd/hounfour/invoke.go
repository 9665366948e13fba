package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hounfour/gateway/config"
	"github.com/hounfour/gateway/contextfilter"
	"github.com/hounfour/gateway/credentials"
	"github.com/hounfour/gateway/llm"
	"github.com/hounfour/gateway/llm/factory"
	"github.com/hounfour/gateway/metering"
	"github.com/hounfour/gateway/routing"
	"github.com/hounfour/gateway/types"
)

func newInvokeCommand() *cobra.Command {
	var (
		promptFlag     string
		modelOverride  string
		stateDir       string
		dryRun         bool
		auditFiltering bool
	)

	cmd := &cobra.Command{
		Use:   "invoke <agent>",
		Short: "Dispatch a single agent-name + prompt request to its bound model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentName := args[0]

			prompt, err := readPrompt(promptFlag)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer logger.Sync()

			if stateDir == "" {
				stateDir = defaultStateDir()
			}

			return runInvoke(cmd.Context(), cfg, logger, invokeParams{
				agentName:      agentName,
				prompt:         prompt,
				modelOverride:  modelOverride,
				stateDir:       stateDir,
				dryRun:         dryRun,
				auditFiltering: auditFiltering,
			})
		},
	}

	cmd.Flags().StringVar(&promptFlag, "prompt", "", "Prompt text (reads stdin if omitted)")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override the agent's bound model (alias or provider:model-id)")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory for ledger/rate-limit/circuit-breaker state (default $XDG_STATE_HOME/hounfour or ./.hounfour)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve routing and print the plan without dispatching")
	cmd.Flags().BoolVar(&auditFiltering, "audit-filtering", false, "Run context filtering in audit mode regardless of configured feature flag")

	return cmd
}

type invokeParams struct {
	agentName      string
	prompt         string
	modelOverride  string
	stateDir       string
	dryRun         bool
	auditFiltering bool
}

func readPrompt(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	if len(data) == 0 {
		return "", types.NewError(types.ErrInvalidInput, "no prompt supplied: pass --prompt or pipe one on stdin")
	}
	return string(data), nil
}

func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "hounfour")
	}
	return ".hounfour"
}

func runInvoke(ctx context.Context, cfg *config.Config, logger *zap.Logger, p invokeParams) error {
	binding, ok := cfg.Agents[p.agentName]
	if !ok {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("agent %q not configured", p.agentName))
	}
	binding.Agent = p.agentName

	routingCfg := cfg.RoutingConfig()
	ref, err := routing.Resolve(binding, p.modelOverride, routingCfg)
	if err != nil {
		return err
	}

	if ref.IsNative() {
		return types.NewError(types.ErrNativeRuntimeRequired,
			fmt.Sprintf("agent %q runs in the calling process's native runtime; hounfour only dispatches remote requests", p.agentName))
	}

	providerModels := cfg.ProviderModels()
	if _, ok := providerModels[ref.String()]; !ok {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("%s is not a registered provider model", ref))
	}
	providerEntry, ok := cfg.Providers[ref.Provider]
	if !ok {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("provider %q not configured", ref.Provider))
	}

	ledger := metering.NewLedger(p.stateDir, logger)
	budgetEnforcer := metering.NewBudgetEnforcer(cfg.BudgetConfig(), ledger, logger)

	status := budgetEnforcer.PreCall()
	switch status {
	case metering.BudgetBlock:
		return types.NewError(types.ErrBudgetExceeded, "daily budget exhausted, on_exceeded=block")
	case metering.BudgetDowngrade:
		if downgraded, derr := routing.WalkDowngradeChain(ref, binding, routingCfg, providerModels, nil); derr == nil {
			logger.Warn("budget exceeded, downgrading model", zap.String("from", ref.String()), zap.String("to", downgraded.String()))
			ref = downgraded
			providerEntry = cfg.Providers[ref.Provider]
		} else {
			logger.Warn("budget exceeded and no downgrade available, proceeding at current model", zap.Error(derr))
		}
	case metering.BudgetWarn:
		logger.Warn("approaching daily budget limit")
	}

	rateLimiter := metering.NewRateLimiterForProvider(ref.Provider, p.stateDir)
	if !rateLimiter.Check(ref.Provider, int64(len(p.prompt))/4) {
		if fallback, ferr := routing.WalkFallbackChain(ref, binding, routingCfg, providerModels, nil, nil); ferr == nil {
			logger.Warn("provider rate-limited, falling back", zap.String("from", ref.String()), zap.String("to", fallback.String()))
			ref = fallback
			providerEntry = cfg.Providers[ref.Provider]
		} else {
			return types.NewError(types.ErrRateLimited, fmt.Sprintf("provider %q rate-limited and no fallback available", ref.Provider))
		}
	}

	messages := []types.Message{{Role: types.RoleUser, Content: p.prompt}}
	messages = applyContextFilter(messages, cfg, ref, binding.RequiresNativeRuntime, p.auditFiltering, logger)

	if p.dryRun {
		fmt.Printf("agent=%s resolved=%s provider_type=%s endpoint=%s\n", p.agentName, ref, providerEntry.Type, providerEntry.Endpoint)
		return nil
	}

	credProvider := credentials.NewCompositeProviderWithAllowlist(".", cfg.SecretEnvAllowlist, cfg.SecretPaths)
	apiKey, _ := credProvider.Get(providerEntry.Auth)

	llmProvider, err := factory.NewProviderFromConfig(ref.Provider, factory.ProviderConfig{
		APIKey:  apiKey,
		BaseURL: providerEntry.Endpoint,
		Model:   ref.ModelID,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to construct provider %q: %w", ref.Provider, err)
	}

	start := time.Now()
	resp, err := llmProvider.Completion(ctx, &llm.ChatRequest{
		Model:    ref.ModelID,
		Messages: messages,
	})
	latency := time.Since(start)
	if err != nil {
		return err
	}

	if rerr := rateLimiter.Record(ref.Provider, int64(resp.Usage.TotalTokens)); rerr != nil {
		logger.Warn("rate limiter record failed", zap.Error(rerr))
	}

	pricing, havePricing := metering.PricingEntry{}, false
	if cerr := budgetEnforcer.PostCall(metering.PostCallInput{
		Agent:        p.agentName,
		Provider:     ref.Provider,
		Model:        ref.ModelID,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		LatencyMs:    latency.Milliseconds(),
		UsageSource:  "actual",
	}, pricing, havePricing); cerr != nil {
		logger.Warn("failed to record cost", zap.Error(cerr))
	}

	for _, choice := range resp.Choices {
		fmt.Println(choice.Message.Content)
	}
	return nil
}

func applyContextFilter(messages []types.Message, cfg *config.Config, ref routing.ModelRef, isNative bool, forceAudit bool, logger *zap.Logger) []types.Message {
	if cfg.Features.ContextFiltering == config.ContextFilteringOff && !forceAudit {
		return messages
	}

	permissionsPath := "model-permissions.yaml"
	if configPath != "" {
		permissionsPath = filepath.Join(filepath.Dir(configPath), "model-permissions.yaml")
	}
	scopes := contextfilter.NewPermissionsCache(permissionsPath).Lookup(ref.Provider, ref.ModelID)

	if forceAudit || cfg.Features.ContextFiltering == config.ContextFilteringAudit {
		_, audit := contextfilter.AuditFilterMessages(messages, scopes, isNative)
		if len(audit.DimensionsTouched) > 0 {
			logger.Info("context filtering audit: would reduce content",
				zap.Strings("dimensions", audit.DimensionsTouched), zap.Ints("char_deltas", audit.CharDeltas))
		}
		return messages
	}

	return contextfilter.FilterMessages(messages, scopes, isNative)
}

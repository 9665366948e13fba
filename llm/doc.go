// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm provides unified LLM provider abstraction and routing.

# Overview

The llm package provides a unified interface for interacting with multiple
Large Language Model providers. It abstracts away provider-specific details
and provides features like routing, caching, retry logic, and observability.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                    Application Layer                        │
	├─────────────────────────────────────────────────────────────┤
	│                    Routing (routing package)                │
	│  (Alias resolution, fallback and downgrade chains)          │
	├─────────────────────────────────────────────────────────────┤
	│  ┌─────────────┐  ┌─────────────┐  ┌─────────────────────┐ │
	│  │  Circuit    │  │   Retry     │  │   Observability     │ │
	│  │  Breaker    │  │  (Backoff)  │  │  (Metrics/Tracing)  │ │
	│  └─────────────┘  └─────────────┘  └─────────────────────┘ │
	├─────────────────────────────────────────────────────────────┤
	│                    Provider Interface                       │
	├──────────┬──────────┬──────────┬──────────┬────────────────┤
	│  OpenAI  │ Anthropic│  Gemini  │ DeepSeek │    Others...   │
	└──────────┴──────────┴──────────┴──────────┴────────────────┘

# Provider Interface

The core Provider interface defines the contract for all LLM providers:

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	}

# Supported Providers

The package supports 13+ LLM providers out of the box:

  - OpenAI (GPT-4, GPT-4o, GPT-3.5-turbo)
  - Anthropic (Claude 3 Opus, Sonnet, Haiku)
  - Google (Gemini Pro, Gemini Ultra)
  - DeepSeek (DeepSeek-Chat, DeepSeek-Coder)
  - Alibaba (Qwen-Turbo, Qwen-Plus, Qwen-Max)
  - Tencent (Hunyuan)
  - Moonshot (Kimi)
  - Zhipu (GLM-4)
  - ByteDance (Doubao)
  - Baidu (ERNIE)
  - MiniMax
  - Mistral
  - Meta (Llama)
  - xAI (Grok)

# Usage

Basic usage with a single provider:

	provider, err := openai.NewProvider(&openai.Config{
	    APIKey: "your-api-key",
	    Model:  "gpt-4o",
	})
	if err != nil {
	    log.Fatal(err)
	}

	resp, err := provider.Completion(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: []llm.Message{
	        {Role: llm.RoleUser, Content: "Hello!"},
	    },
	})

Resolving an agent binding to a concrete provider:model, with fallback
and downgrade chains handled by the routing package:

	ref, err := routing.Resolve(binding, cliModelOverride, routingConfig)
	if err != nil {
	    ref, err = routing.WalkFallbackChain(ref, binding, routingConfig, providerModels, prober, nil)
	}

# Streaming

Stream is part of the Provider interface, but only the claude, gemini and
qwen adapters stream. The OpenAI-compatible adapters (openai, llama,
deepseek, glm, kimi, minimax, openaicompat) return an ErrInvalidRequest
error from Stream without sending a request. With a streaming adapter:

	stream, err := provider.Stream(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: messages,
	})
	if err != nil {
	    log.Fatal(err)
	}

	for chunk := range stream {
	    if chunk.Err != nil {
	        log.Printf("Error: %v", chunk.Err)
	        break
	    }
	    fmt.Print(chunk.Delta.Content)
	}

# Caching

There is no response cache. The only request-level store is the
in-process idempotency manager in llm/idempotency:

	mgr := idempotency.NewMemoryManager(logger)

# Retry and Resilience

Built-in retry with exponential backoff, paired with a per-provider
circuit breaker:

	retryer := retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), logger)
	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{Threshold: 5}, logger)

# Observability

OpenTelemetry tracing and metrics are set up once per process by
internal/telemetry; providers are not wrapped:

	otel, err := telemetry.Init(telemetryConfig, logger)

# Tool Calling

Support for native function calling:

	resp, err := provider.Completion(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: messages,
	    Tools: []llm.ToolSchema{
	        {
	            Name:        "get_weather",
	            Description: "Get current weather for a location",
	            Parameters:  weatherParamsSchema,
	        },
	    },
	})

# Error Handling

The package defines structured error codes:

	const (
	    ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	    ErrAuthentication      ErrorCode = "AUTHENTICATION"
	    ErrRateLimit           ErrorCode = "RATE_LIMIT"
	    ErrContextTooLong      ErrorCode = "CONTEXT_TOO_LONG"
	    ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	)

Use IsRetryable to check if an error can be retried:

	if llm.IsRetryable(err) {
	    // Implement retry logic
	}

# Credentials

API key resolution is layered: environment, then an encrypted local
store, then a project .env.local file, handled by the credentials
package rather than a database-backed key pool.

See the subpackages for additional functionality:
  - llm/budget: Token-budget accounting
  - llm/circuitbreaker: Per-provider circuit breaking
  - llm/factory: Provider construction from configuration
  - llm/idempotency: Request deduplication (in-process cache)
  - llm/middleware: Request rewriters
  - llm/retry: Retry strategies and backoff
  - llm/tokenizer: Token counting
  - providers/*: Provider-specific implementations
*/
package llm

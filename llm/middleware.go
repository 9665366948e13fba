package llm

// =============================================================================
// LLM Middleware
// =============================================================================
// This file holds no code. Request middleware lives in the llm/middleware
// sub-package (github.com/hounfour/gateway/llm/middleware), which provides
// request rewriters only: RequestRewriter, RewriterChain and
// EmptyToolsCleaner. It has no handler chain and no logging, timeout,
// recovery, metrics, retry or cache middleware.
//
// Import path: github.com/hounfour/gateway/llm/middleware
// =============================================================================

// Package middleware provides request-rewriting hooks that run before a
// chat request reaches a provider adapter.
//
// RequestRewriter/RewriterChain clean up or transform outbound requests,
// e.g. EmptyToolsCleaner strips tool_choice when no tools are set so
// upstream APIs that reject that combination don't 400.
package middleware

package middleware

import (
	"context"
	"fmt"

	llmpkg "github.com/hounfour/gateway/llm"
)

// RequestRewriter transforms an outbound request before it reaches a
// provider adapter, e.g. to strip fields an upstream API rejects.
type RequestRewriter interface {
	Rewrite(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error)
	Name() string
}

// RewriterChain runs a sequence of RequestRewriters in order.
type RewriterChain struct {
	rewriters []RequestRewriter
}

// NewRewriterChain creates a rewriter chain from the given rewriters.
func NewRewriterChain(rewriters ...RequestRewriter) *RewriterChain {
	return &RewriterChain{rewriters: rewriters}
}

// Execute runs every rewriter in order, stopping at the first error.
func (c *RewriterChain) Execute(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if c == nil || len(c.rewriters) == 0 {
		return req, nil
	}

	var err error
	for _, rewriter := range c.rewriters {
		req, err = rewriter.Rewrite(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rewriter [%s] failed: %w", rewriter.Name(), err)
		}
	}

	return req, nil
}

// AddRewriter appends a rewriter to the chain.
func (c *RewriterChain) AddRewriter(rewriter RequestRewriter) {
	c.rewriters = append(c.rewriters, rewriter)
}

// GetRewriters returns the rewriters currently in the chain.
func (c *RewriterChain) GetRewriters() []RequestRewriter {
	return c.rewriters
}

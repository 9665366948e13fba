package middleware

import (
	"context"

	llmpkg "github.com/hounfour/gateway/llm"
)

// EmptyToolsCleaner clears ToolChoice when Tools is empty, avoiding
// upstream 400s from APIs that reject tool_choice without tools.
type EmptyToolsCleaner struct{}

// NewEmptyToolsCleaner creates an EmptyToolsCleaner.
func NewEmptyToolsCleaner() *EmptyToolsCleaner {
	return &EmptyToolsCleaner{}
}

func (r *EmptyToolsCleaner) Name() string { return "empty_tools_cleaner" }

func (r *EmptyToolsCleaner) Rewrite(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if req == nil {
		return req, nil
	}
	if len(req.Tools) == 0 {
		req.ToolChoice = ""
	}
	return req, nil
}

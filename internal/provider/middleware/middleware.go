// Package middleware provides a chain of interceptors between the turn
// orchestrator and the LLM providers. Middleware can inspect, transform, or
// filter messages before and after the model call.
package middleware

import (
	"context"
	"fmt"

	"github.com/ansibot/ansibot/internal/provider"
)

// ChatMiddleware intercepts LLM requests and/or responses.
type ChatMiddleware interface {
	// Name returns a short identifier for logging.
	Name() string
	// ProcessRequest is called before the model call. It may modify the
	// request or return an error to abort.
	ProcessRequest(ctx context.Context, req *provider.ChatRequest, meta *RequestMeta) error
	// ProcessResponse is called after the model call. It may modify the
	// response or return an error to suppress delivery.
	ProcessResponse(ctx context.Context, req *provider.ChatRequest, resp *provider.ChatResponse, meta *RequestMeta) error
}

// RequestMeta carries mutable context through the chain.
type RequestMeta struct {
	TraceID     string            // turn trace identifier
	Channel     string            // e.g. "slack", "cli"
	Tags        map[string]string // set by middleware (e.g. "output_sanitized":"redacted")
	Blocked     bool              // set by a pre-hook to abort the call
	BlockReason string
}

// NewRequestMeta creates a RequestMeta with initialized Tags map.
func NewRequestMeta(traceID, channel string) *RequestMeta {
	return &RequestMeta{
		TraceID: traceID,
		Channel: channel,
		Tags:    make(map[string]string),
	}
}

// Chain holds an ordered list of middleware and a provider.
// It runs pre-hooks in order, calls the provider, then runs post-hooks in order.
type Chain struct {
	Middlewares []ChatMiddleware
	Provider    provider.LLMProvider
}

// NewChain creates a chain with the given provider and no middleware.
func NewChain(prov provider.LLMProvider) *Chain {
	return &Chain{
		Provider: prov,
	}
}

// Use appends middleware to the chain.
func (c *Chain) Use(mw ...ChatMiddleware) {
	c.Middlewares = append(c.Middlewares, mw...)
}

// DefaultModel returns the underlying provider's default model, so a Chain
// can stand in wherever an LLMProvider is expected.
func (c *Chain) DefaultModel() string {
	return c.Provider.DefaultModel()
}

// Chat runs the middleware chain: pre-hooks, model call, post-hooks.
// With no middleware configured it is a passthrough.
func (c *Chain) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return c.Process(ctx, req, nil)
}

// Process is Chat with explicit request metadata.
func (c *Chain) Process(ctx context.Context, req *provider.ChatRequest, meta *RequestMeta) (*provider.ChatResponse, error) {
	if meta == nil {
		meta = NewRequestMeta("", "")
	}

	for _, mw := range c.Middlewares {
		if err := mw.ProcessRequest(ctx, req, meta); err != nil {
			return nil, fmt.Errorf("middleware %s pre-hook: %w", mw.Name(), err)
		}
		if meta.Blocked {
			return &provider.ChatResponse{
				Content:      fmt.Sprintf("[blocked by %s] %s", mw.Name(), meta.BlockReason),
				FinishReason: "blocked",
			}, nil
		}
	}

	resp, err := c.Provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, mw := range c.Middlewares {
		if err := mw.ProcessResponse(ctx, req, resp, meta); err != nil {
			return nil, fmt.Errorf("middleware %s post-hook: %w", mw.Name(), err)
		}
	}

	return resp, nil
}

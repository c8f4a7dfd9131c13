// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to return scripted completions without a live
// model backend and to assert on the prompts the caller sent.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `[]`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/fieldops-ai/fieldops/pkg/provider/llm"
)

// CompleteCall records a single invocation of Provider.Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// When Responses is non-empty, successive calls to Complete consume it in
// order; after it is exhausted, CompleteResponse is returned. A zero-value
// Provider returns an empty response and nil error.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned when Responses is empty or exhausted.
	CompleteResponse *llm.CompletionResponse

	// Responses are returned one per call, in order.
	Responses []*llm.CompletionResponse

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// CompleteCalls records every call to Complete.
	CompleteCalls []CompleteCall

	next int
}

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.next < len(p.Responses) {
		resp := p.Responses[p.next]
		p.next++
		return resp, nil
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return &llm.CompletionResponse{}, nil
}

// Reset clears all recorded calls and rewinds the scripted responses.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

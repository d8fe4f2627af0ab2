package consult

import (
	"context"
	"sync"
)

// Event is one lifecycle notification emitted to an optional progress
// subscriber (§4.8). No internal orchestration state depends on whether
// a subscriber is attached.
type Event struct {
	Kind     string // "started" | "token_chunk" | "completed" | "failed"
	Tool     string
	Text     string
	Response ToolResponse
	Reason   string
}

// Subscriber receives lifecycle Events for UI rendering.
type Subscriber func(Event)

// MultiToolResponse is parallel's aggregated result (§4.8).
type MultiToolResponse struct {
	Success   bool
	Responses []ToolResponse
	Failures  []ToolResponse
}

// Single runs one adapter to completion.
func Single(ctx context.Context, a Adapter, req Request, sub Subscriber) ToolResponse {
	notify(sub, Event{Kind: "started", Tool: a.Name()})
	resp := a.Call(ctx, req)
	if resp.Success {
		notify(sub, Event{Kind: "completed", Tool: a.Name(), Response: resp})
	} else {
		notify(sub, Event{Kind: "failed", Tool: a.Name(), Reason: resp.Error})
	}
	return resp
}

// Parallel fans adapters out as concurrent goroutines, waits for all
// (or until the context deadline), and returns partial results — one
// tool's failure never fails the whole batch (§4.8).
func Parallel(ctx context.Context, adapters []Adapter, req Request, sub Subscriber) MultiToolResponse {
	var wg sync.WaitGroup
	results := make([]ToolResponse, len(adapters))

	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			results[i] = Single(ctx, a, req, sub)
		}(i, a)
	}
	wg.Wait()

	out := MultiToolResponse{}
	for _, r := range results {
		if r.Success {
			out.Responses = append(out.Responses, r)
		} else {
			out.Failures = append(out.Failures, r)
		}
	}
	out.Success = len(out.Responses) > 0
	return out
}

// WithFallback tries adapters in priority order, advancing past any
// error or timeout, and returns on the first success (§4.8).
func WithFallback(ctx context.Context, adapters []Adapter, req Request, sub Subscriber) ToolResponse {
	var last ToolResponse
	for _, a := range adapters {
		resp := Single(ctx, a, req, sub)
		if resp.Success {
			return resp
		}
		last = resp
	}
	return last
}

func notify(sub Subscriber, e Event) {
	if sub != nil {
		sub(e)
	}
}

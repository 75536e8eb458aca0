// Package agent runs Claude agents for plan breakdown, task execution and
// project initialization. Agents are reached either through the claude CLI
// subprocess or through the Anthropic API, behind a common Invoker contract.
package agent

import "context"

// Response is the outcome of one agent call.
type Response struct {
	// Text is the agent's final reply. On failure it carries stderr or the
	// API error message.
	Text string
	// ExitCode is zero on success.
	ExitCode int
}

// OK reports whether the call succeeded.
func (r Response) OK() bool {
	return r.ExitCode == 0
}

// Invoker sends a prompt to an agent and waits for its reply.
//
// A returned error means the call could not be made at all (binary missing,
// context cancelled). An agent that ran and failed is reported through a
// non-zero Response.ExitCode with a nil error.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (Response, error)
}

// StreamingInvoker is an Invoker that also reports partial text while the
// agent works.
type StreamingInvoker interface {
	Invoker
	InvokeStream(ctx context.Context, prompt string, onText func(string)) (Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt string) (Response, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (Response, error) {
	return f(ctx, prompt)
}

// Stream invokes inv with streaming when it supports it. Otherwise it falls
// back to Invoke and reports the whole reply to onText once.
func Stream(ctx context.Context, inv Invoker, prompt string, onText func(string)) (Response, error) {
	if onText == nil {
		onText = func(string) {}
	}
	if s, ok := inv.(StreamingInvoker); ok {
		return s.InvokeStream(ctx, prompt, onText)
	}
	resp, err := inv.Invoke(ctx, prompt)
	if err == nil && resp.Text != "" {
		onText(resp.Text)
	}
	return resp, err
}

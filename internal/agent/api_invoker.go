package agent

import (
	"context"
)

// Completer is a single-turn text completion backend. *api.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// APIInvoker sends prompts to the Anthropic API instead of the CLI. It cannot
// edit files, so it suits the breakdown and repair agents, which only return
// JSON.
type APIInvoker struct {
	client Completer
	system string
}

// NewAPIInvoker creates an invoker backed by client. system is sent as the
// system prompt on every call and may be empty.
func NewAPIInvoker(client Completer, system string) *APIInvoker {
	return &APIInvoker{client: client, system: system}
}

// Invoke sends the prompt. API failures are reported as exit code 1 with the
// error text.
func (a *APIInvoker) Invoke(ctx context.Context, prompt string) (Response, error) {
	text, err := a.client.Complete(ctx, a.system, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Response{ExitCode: 1}, ctx.Err()
		}
		return Response{Text: err.Error(), ExitCode: 1}, nil
	}
	return Response{Text: text}, nil
}

// InvokeStream sends the prompt and reports the reply once it arrives.
func (a *APIInvoker) InvokeStream(ctx context.Context, prompt string, onText func(string)) (Response, error) {
	if onText != nil {
		onText("waiting for API response")
	}
	resp, err := a.Invoke(ctx, prompt)
	if err == nil && onText != nil && resp.Text != "" {
		onText(resp.Text)
	}
	return resp, err
}

var _ StreamingInvoker = (*APIInvoker)(nil)

package agent

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// CLIInvoker runs each prompt in a fresh claude CLI subprocess.
type CLIInvoker struct {
	opts     StartOptions
	debugLog func(format string, args ...interface{})
}

// CLIOption configures a CLIInvoker.
type CLIOption func(*CLIInvoker)

// WithBinary sets the claude executable path.
func WithBinary(path string) CLIOption {
	return func(c *CLIInvoker) {
		c.opts.Binary = path
	}
}

// WithModel sets the --model flag.
func WithModel(model string) CLIOption {
	return func(c *CLIInvoker) {
		c.opts.Model = model
	}
}

// WithPermissionMode sets the --permission-mode flag. An empty mode omits it.
func WithPermissionMode(mode string) CLIOption {
	return func(c *CLIInvoker) {
		c.opts.PermissionMode = mode
	}
}

// WithWorkDir runs the subprocess in dir.
func WithWorkDir(dir string) CLIOption {
	return func(c *CLIInvoker) {
		c.opts.Dir = dir
	}
}

// NewCLIInvoker creates an invoker for the claude CLI.
func NewCLIInvoker(opts ...CLIOption) *CLIInvoker {
	c := &CLIInvoker{
		opts:     StartOptions{PermissionMode: DefaultPermissionMode},
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDebugLog sets the debug logging function.
func (c *CLIInvoker) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		c.debugLog = fn
	}
}

// Invoke runs the prompt without streaming.
func (c *CLIInvoker) Invoke(ctx context.Context, prompt string) (Response, error) {
	return c.InvokeStream(ctx, prompt, nil)
}

// InvokeStream runs the prompt and passes assistant text and tool actions
// to onText as they arrive.
//
// The reply is the result event's text when the CLI emits one, otherwise
// the concatenated assistant text.
func (c *CLIInvoker) InvokeStream(ctx context.Context, prompt string, onText func(string)) (Response, error) {
	if onText == nil {
		onText = func(string) {}
	}

	opts := c.opts
	proc := NewClaudeProcess(ctx)
	if err := proc.Start(prompt, &opts); err != nil {
		return Response{ExitCode: 1}, err
	}
	c.debugLog("[agent] started claude pid=%d prompt=%d bytes", proc.PID(), len(prompt))

	var (
		parts     []string
		result    string
		hasResult bool
		isError   bool
	)
	for ev := range proc.Output() {
		switch ev.Type {
		case StreamEventAssistant:
			if ev.Message != "" {
				parts = append(parts, ev.Message)
				onText(ev.Message)
			} else if ev.ToolAction != "" {
				onText(ev.ToolAction)
			}
		case StreamEventResult:
			result, hasResult, isError = ev.Message, true, ev.IsError
		case StreamEventError:
			c.debugLog("[agent] stream error: %s", ev.Error)
		}
	}

	text := strings.Join(parts, "")
	if hasResult && result != "" {
		text = result
	}

	if err := proc.Wait(); err != nil {
		if ctx.Err() != nil {
			return Response{Text: text, ExitCode: 1}, ctx.Err()
		}
		code := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			code = exitErr.ExitCode()
		}
		if stderr := strings.TrimSpace(proc.Stderr()); stderr != "" {
			text = strings.TrimSpace(text + "\n" + stderr)
		}
		c.debugLog("[agent] claude exited with code %d", code)
		return Response{Text: text, ExitCode: code}, nil
	}

	if isError {
		return Response{Text: text, ExitCode: 1}, nil
	}
	return Response{Text: text}, nil
}

var _ StreamingInvoker = (*CLIInvoker)(nil)

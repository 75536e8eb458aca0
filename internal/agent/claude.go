package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// StreamEventType is the type of an event in the claude CLI stream-json output.
type StreamEventType string

const (
	StreamEventSystem    StreamEventType = "system"
	StreamEventAssistant StreamEventType = "assistant"
	StreamEventUser      StreamEventType = "user"
	StreamEventResult    StreamEventType = "result"
	StreamEventError     StreamEventType = "error"
)

// DefaultPermissionMode lets agents edit files without prompting.
const DefaultPermissionMode = "acceptEdits"

// maxArgPrompt is the longest prompt passed on the command line. Longer
// prompts are written to stdin.
const maxArgPrompt = 32 * 1024

// StreamEvent is one parsed line of stream-json output.
type StreamEvent struct {
	Type StreamEventType
	// Message is the text carried by an assistant or result event.
	Message string
	// Error is set for error events and unparseable lines.
	Error string
	// ToolAction describes a tool call, e.g. "Reading plan.json".
	ToolAction string
	// IsError is set on a result event that reports failure.
	IsError bool
	Raw     json.RawMessage
}

// StartOptions configures a claude subprocess.
type StartOptions struct {
	// Binary is the executable to run. Defaults to "claude".
	Binary string
	// Model overrides the CLI's default model.
	Model string
	// PermissionMode is passed as --permission-mode when set.
	PermissionMode string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// ExtraArgs are appended before the prompt.
	ExtraArgs []string
}

// ClaudeProcess manages a claude CLI subprocess running in stream-json mode.
type ClaudeProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx       context.Context
	cancel    context.CancelFunc
	outputCh  chan StreamEvent
	stderrBuf []byte
	once      sync.Once
	mu        sync.Mutex
	started   bool
	readers   sync.WaitGroup
	done      chan struct{}
}

// NewClaudeProcess creates a process bound to ctx. Cancelling ctx kills it.
func NewClaudeProcess(ctx context.Context) *ClaudeProcess {
	ctx, cancel := context.WithCancel(ctx)
	return &ClaudeProcess{
		ctx:      ctx,
		cancel:   cancel,
		outputCh: make(chan StreamEvent, 100),
		done:     make(chan struct{}),
	}
}

// buildArgs returns the CLI arguments and whether the prompt goes to stdin.
func buildArgs(prompt string, opts *StartOptions) ([]string, bool) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)

	if len(prompt) > maxArgPrompt {
		return args, true
	}
	return append(args, prompt), false
}

// Start launches the subprocess with the given prompt.
func (p *ClaudeProcess) Start(prompt string, opts *StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("process already started")
	}
	if opts == nil {
		opts = &StartOptions{}
	}
	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}

	args, viaStdin := buildArgs(prompt, opts)
	p.cmd = exec.CommandContext(p.ctx, binary, args...)
	if opts.Dir != "" {
		p.cmd.Dir = opts.Dir
	}
	if viaStdin {
		p.cmd.Stdin = strings.NewReader(prompt)
	}

	var err error
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}
	p.started = true

	p.readers.Add(2)
	go p.readOutput()
	go p.readStderr()
	go func() {
		p.readers.Wait()
		close(p.outputCh)
		close(p.done)
	}()

	return nil
}

// readOutput parses stdout line by line into events.
func (p *ClaudeProcess) readOutput() {
	defer p.readers.Done()

	scanner := bufio.NewScanner(p.stdout)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		event, err := parseStreamEvent(line)
		if err != nil {
			// Plain text lines are passed through as assistant output.
			event = StreamEvent{Type: StreamEventAssistant, Message: string(line), Raw: append([]byte(nil), line...)}
		}
		select {
		case p.outputCh <- event:
		case <-p.ctx.Done():
			io.Copy(io.Discard, p.stdout)
			return
		}
	}

	if err := scanner.Err(); err != nil && p.ctx.Err() == nil {
		select {
		case p.outputCh <- StreamEvent{Type: StreamEventError, Error: fmt.Sprintf("read error: %v", err)}:
		case <-p.ctx.Done():
		}
	}
}

// readStderr buffers stderr for Stderr and Wait.
func (p *ClaudeProcess) readStderr() {
	defer p.readers.Done()

	data, err := io.ReadAll(p.stderr)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stderrBuf = append(p.stderrBuf, data...)
	if err != nil && p.ctx.Err() == nil {
		p.stderrBuf = append(p.stderrBuf, fmt.Sprintf("[stderr read error: %v]", err)...)
	}
}

type rawContent struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

type rawEvent struct {
	Type    StreamEventType `json:"type"`
	Message json.RawMessage `json:"message"`
	Result  string          `json:"result"`
	IsError bool            `json:"is_error"`
	Error   json.RawMessage `json:"error"`
}

// parseStreamEvent decodes one stream-json line.
func parseStreamEvent(data []byte) (StreamEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshal json: %w", err)
	}

	event := StreamEvent{Type: raw.Type, Raw: append([]byte(nil), data...)}

	switch raw.Type {
	case StreamEventAssistant, StreamEventUser, StreamEventSystem:
		var msg struct {
			Content []rawContent `json:"content"`
		}
		if len(raw.Message) > 0 && json.Unmarshal(raw.Message, &msg) == nil {
			var texts []string
			for _, c := range msg.Content {
				switch c.Type {
				case "text":
					if c.Text != "" {
						texts = append(texts, c.Text)
					}
				case "tool_use":
					if event.ToolAction == "" {
						event.ToolAction = formatToolAction(c.Name, c.Input)
					}
				}
			}
			event.Message = strings.Join(texts, "")
		} else {
			var s string
			if json.Unmarshal(raw.Message, &s) == nil {
				event.Message = s
			}
		}
	case StreamEventResult:
		event.Message = raw.Result
		event.IsError = raw.IsError
	case StreamEventError:
		var s string
		if json.Unmarshal(raw.Error, &s) == nil {
			event.Error = s
		} else if len(raw.Error) > 0 {
			event.Error = string(raw.Error)
		}
	}

	return event, nil
}

// formatToolAction renders a tool_use block as a short status line.
func formatToolAction(name string, input map[string]interface{}) string {
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}
	switch name {
	case "":
		return ""
	case "Read":
		if path := str("file_path"); path != "" {
			return "Reading " + shorten(filepath.Base(path), 20)
		}
		return "Reading file"
	case "Edit", "MultiEdit":
		if path := str("file_path"); path != "" {
			return "Editing " + shorten(filepath.Base(path), 20)
		}
		return "Editing file"
	case "Write":
		if path := str("file_path"); path != "" {
			return "Writing " + shorten(filepath.Base(path), 20)
		}
		return "Writing file"
	case "Bash":
		if cmd := strings.Fields(str("command")); len(cmd) > 0 {
			return "Running " + shorten(cmd[0], 20)
		}
		return "Running command"
	case "Glob":
		if pattern := str("pattern"); pattern != "" {
			return "Searching " + shorten(pattern, 15)
		}
		return "Searching files"
	case "Grep":
		if pattern := str("pattern"); pattern != "" {
			return "Grep " + shorten(pattern, 15)
		}
		return "Searching code"
	default:
		return name
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Output returns the event channel. It is closed once stdout and stderr are
// drained.
func (p *ClaudeProcess) Output() <-chan StreamEvent {
	return p.outputCh
}

// Wait waits for the process to exit. The returned error wraps the
// *exec.ExitError so callers can recover the exit code.
func (p *ClaudeProcess) Wait() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("process not started")
	}
	p.mu.Unlock()

	<-p.done

	if err := p.cmd.Wait(); err != nil {
		if p.ctx.Err() != nil {
			return fmt.Errorf("process exited (context: %v): %w", p.ctx.Err(), err)
		}
		return fmt.Errorf("process exited: %w", err)
	}
	return nil
}

// Kill terminates the process immediately.
func (p *ClaudeProcess) Kill() error {
	p.once.Do(func() {
		p.cancel()
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Stderr returns stderr captured so far.
func (p *ClaudeProcess) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrBuf)
}

// PID returns the process ID of the subprocess, or 0 if not started.
func (p *ClaudeProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

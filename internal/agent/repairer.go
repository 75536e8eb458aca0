package agent

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/phaser/internal/plan"
)

// Repairer fixes malformed plan documents by asking an agent to rewrite them.
type Repairer struct {
	inv Invoker
}

// NewRepairer creates a repairer that sends RepairPrompt to inv.
func NewRepairer(inv Invoker) *Repairer {
	return &Repairer{inv: inv}
}

// Repair returns the agent's reply. The plan store extracts and validates
// the JSON before writing it back.
func (r *Repairer) Repair(ctx context.Context, path string, content []byte, parseErr error) ([]byte, error) {
	resp, err := r.inv.Invoke(ctx, RepairPrompt(path, content, parseErr))
	if err != nil {
		return nil, fmt.Errorf("invoke repair agent: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("repair agent exited with code %d", resp.ExitCode)
	}
	return []byte(resp.Text), nil
}

var _ plan.Repairer = (*Repairer)(nil)

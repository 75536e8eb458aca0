package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
)

// RepairTimeout bounds a single repair attempt.
var RepairTimeout = 5 * time.Minute

// Repairer turns a malformed document into valid JSON. Implementations
// usually delegate to an agent.
type Repairer interface {
	Repair(ctx context.Context, path string, content []byte, parseErr error) ([]byte, error)
}

// RepairFunc adapts a function to the Repairer interface.
type RepairFunc func(ctx context.Context, path string, content []byte, parseErr error) ([]byte, error)

// Repair calls f.
func (f RepairFunc) Repair(ctx context.Context, path string, content []byte, parseErr error) ([]byte, error) {
	return f(ctx, path, content, parseErr)
}

// repair backs up the broken file, asks the repairer for a fix and overwrites
// the original only when the fix parses. The backup is always left on disk.
func (s *Store) repair(path string, content []byte, parseErr error) ([]byte, error) {
	s.repairMu.Lock()
	defer s.repairMu.Unlock()

	backup := fmt.Sprintf("%s.bak.%d", path, time.Now().Unix())
	if err := atomic.WriteFile(backup, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("back up %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), RepairTimeout)
	defer cancel()

	fixed, err := s.repairer.Repair(ctx, path, content, parseErr)
	if err != nil {
		return nil, fmt.Errorf("repair %s: %w", path, err)
	}
	fixed = ExtractJSONObject(fixed)
	if !json.Valid(fixed) {
		return nil, errors.New("repaired content is not valid JSON")
	}
	if err := atomic.WriteFile(path, bytes.NewReader(fixed)); err != nil {
		return nil, fmt.Errorf("overwrite %s: %w", path, err)
	}
	s.logf("[plan] repaired %s (backup %s)", path, backup)
	return fixed, nil
}

// ExtractJSONObject returns the outermost {...} span in data, or data
// unchanged when no braces are present. Agents often wrap JSON in prose or
// code fences.
func ExtractJSONObject(data []byte) []byte {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end < start {
		return bytes.TrimSpace(data)
	}
	return data[start : end+1]
}

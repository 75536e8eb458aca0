package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ShayCichocki/phaser/internal/metrics"
)

// JitterPolicy staggers worker start-up so a batch does not hit the agent
// channel all at once. Worker k waits k*(Base + rand[0, Spread)) before
// starting; the first worker starts immediately.
type JitterPolicy struct {
	Base   time.Duration
	Spread time.Duration
}

// DefaultJitter waits 0.1-0.5s per slot.
func DefaultJitter() JitterPolicy {
	return JitterPolicy{Base: 100 * time.Millisecond, Spread: 400 * time.Millisecond}
}

// NoJitter starts every worker immediately.
func NoJitter() JitterPolicy {
	return JitterPolicy{}
}

// Delay returns the start delay for a slot given a random value in [0, 1).
func (j JitterPolicy) Delay(slot int, r float64) time.Duration {
	if slot <= 0 {
		return 0
	}
	per := j.Base + time.Duration(r*float64(j.Spread))
	return time.Duration(slot) * per
}

// Unit is one piece of work in a batch. slot is the unit's worker index,
// starting at 0.
type Unit func(ctx context.Context, slot int) error

// PanicError is returned for a unit that panicked.
type PanicError struct {
	Slot  int
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %d panicked: %v", e.Slot+1, e.Value)
}

// Pool runs batches of units on a bounded set of goroutines.
type Pool struct {
	workers int
	timeout time.Duration
	jitter  JitterPolicy
	metrics *metrics.Metrics
	logger  *DebugLogger

	rndMu sync.Mutex
	rnd   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithTimeout bounds each unit. Zero means no limit.
func WithTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.timeout = d
	}
}

// WithJitter sets the start-up stagger.
func WithJitter(j JitterPolicy) PoolOption {
	return func(p *Pool) {
		p.jitter = j
	}
}

// WithPoolMetrics reports active workers.
func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithPoolLogger sets the debug logger.
func WithPoolLogger(l *DebugLogger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// NewPool creates a pool running at most workers units at a time.
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		jitter:  DefaultJitter(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Run submits every unit and blocks until all of them have returned. The
// returned slice holds each unit's error at the unit's index.
func (p *Pool) Run(ctx context.Context, units []Unit) []error {
	errs := make([]error, len(units))
	if len(units) == 0 {
		return errs
	}

	wp := pool.New().WithMaxGoroutines(p.workers)
	for i, unit := range units {
		slot := i
		wp.Go(func() {
			errs[slot] = p.runUnit(ctx, slot, unit)
		})
	}
	wp.Wait()
	return errs
}

func (p *Pool) runUnit(ctx context.Context, slot int, unit Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			p.logger.Log("[pool] worker %d panic: %v\n%s", slot+1, r, stack)
			err = &PanicError{Slot: slot, Value: r, Stack: stack}
		}
	}()

	if d := p.jitter.Delay(slot, p.random()); d > 0 {
		if err := p.sleep(ctx, d); err != nil {
			return err
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.metrics.WorkerStarted()
	defer p.metrics.WorkerFinished()

	return unit(ctx, slot)
}

func (p *Pool) random() float64 {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	return p.rnd.Float64()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

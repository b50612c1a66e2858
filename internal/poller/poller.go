// Package poller provides the repeating-timer primitive behind pairing
// status polling and payment result polling.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// TickFunc is invoked on every poll tick. The context is cancelled when
// the poller stops; long calls should pass it downstream.
type TickFunc func(ctx context.Context)

// Poller runs a TickFunc immediately on start and then once per interval.
// At most one timer loop is active per instance, and at most one TickFunc
// invocation runs at a time; ticks that land while an invocation is still
// in flight are skipped and counted.
type Poller struct {
	name string

	mu     sync.Mutex
	cancel context.CancelFunc

	busy    atomic.Bool
	skipped atomic.Int64
}

// New creates a stopped poller. The name only appears in logs.
func New(name string) *Poller {
	return &Poller{name: name}
}

// Start launches the timer loop. Calling Start on a running poller is a
// no-op; the existing loop and its interval are kept.
func (p *Poller) Start(interval time.Duration, fn TickFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		log.Debug().Str("poller", p.name).Msg("poller already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx, interval, fn)
	log.Debug().Str("poller", p.name).Dur("interval", interval).Msg("poller started")
}

// Stop cancels the timer loop and any in-flight invocation's context.
// It is idempotent and never blocks, so a TickFunc may call Stop on its
// own poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	log.Debug().Str("poller", p.name).Msg("poller stopped")
}

// Running reports whether the timer loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// SkippedTicks returns how many ticks were dropped because the previous
// invocation had not finished.
func (p *Poller) SkippedTicks() int64 {
	return p.skipped.Load()
}

func (p *Poller) run(ctx context.Context, interval time.Duration, fn TickFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go p.invoke(ctx, fn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.invoke(ctx, fn)
		}
	}
}

func (p *Poller) invoke(ctx context.Context, fn TickFunc) {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		log.Debug().Str("poller", p.name).Msg("tick skipped, previous invocation still in flight")
		return
	}
	defer p.busy.Store(false)

	if ctx.Err() != nil {
		return
	}
	fn(ctx)
}

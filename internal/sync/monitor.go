package sync

import "context"

// SetOnline records a connectivity transition. Going offline only flips
// the flag consulted by fetches and mutations. Going online runs the
// reconnect sequence in order: queued writes are flushed first so a
// still-lagging server view cannot clobber local optimistic state, then
// every folder is swept for staleness.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	if e.online == online {
		e.mu.Unlock()
		return
	}
	e.online = online
	e.mu.Unlock()

	if !online {
		return
	}

	e.ReplayAll(ctx)
	e.sweep(ctx)
}

// Online reports the last observed connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Monitor bridges a host connectivity signal into the engine. The host
// environment owns detection; the monitor only applies transitions.
type Monitor struct {
	engine *Engine
	signal <-chan bool
}

// NewMonitor wraps a connectivity signal channel. Each value is the new
// online state; duplicate states are ignored by the engine.
func NewMonitor(engine *Engine, signal <-chan bool) *Monitor {
	return &Monitor{engine: engine, signal: signal}
}

// Run applies connectivity transitions until the signal channel closes
// or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-m.signal:
			if !ok {
				return
			}
			m.engine.SetOnline(ctx, online)
		}
	}
}

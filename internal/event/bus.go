package event

import (
	"fmt"
	"sync"
)

// Bus dispatches events to registered hooks.
//
// Dispatch rules:
//  1. Blocking hooks run sequentially in registration order; the first error
//     is returned to the emitter.
//  2. Non-blocking hooks run in goroutines; their errors and panics are
//     logged, never propagated.
//  3. A nil Bus is safe to use; all methods are no-ops.
type Bus struct {
	mu      sync.RWMutex
	hooks   []Hook
	enabled bool
	logger  Logger
}

// Logger is a minimal logging interface so the bus doesn't depend on telemetry.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// NewBus creates an enabled event bus. Pass nil logger for silent operation.
func NewBus(logger Logger) *Bus {
	return &Bus{
		hooks:   make([]Hook, 0),
		enabled: true,
		logger:  logger,
	}
}

// Register adds a hook to the bus.
func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// SetEnabled controls whether the bus dispatches events.
func (b *Bus) SetEnabled(enabled bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// EmitData builds an event from the type and data and emits it.
func (b *Bus) EmitData(t EventType, data map[string]interface{}) error {
	if b == nil {
		return nil
	}
	return b.Emit(NewEvent(t, data))
}

// Emit dispatches an event to all matching hooks. Returns the first error
// from a blocking hook, if any.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	if !b.enabled {
		b.mu.RUnlock()
		return nil
	}
	// Copy the hook slice so dispatch runs without the lock held.
	hooks := make([]Hook, len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.RUnlock()

	for _, h := range hooks {
		if !h.Matches(ev.Type) {
			continue
		}
		if h.IsBlocking() {
			if err := h.Handle(ev); err != nil {
				return fmt.Errorf("blocking hook %s failed: %w", h.Name(), err)
			}
			continue
		}
		go b.dispatchAsync(h, ev)
	}

	return nil
}

func (b *Bus) dispatchAsync(h Hook, ev Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Warn("Non-blocking hook panicked",
				"hook", h.Name(),
				"event", string(ev.Type),
				"panic", r,
			)
		}
	}()
	if err := h.Handle(ev); err != nil && b.logger != nil {
		b.logger.Warn("Non-blocking hook failed",
			"hook", h.Name(),
			"event", string(ev.Type),
			"error", err,
		)
	}
}

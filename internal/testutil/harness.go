package testutil

import (
	"sync"
	"testing"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/provider"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// TestHarness bundles the collaborators integration tests keep rebuilding:
// config, run history, an event bus with capture, a mock provider, and
// assertion helpers over the captured events.
type TestHarness struct {
	T        *testing.T
	Config   *config.Config
	Runs     *state.Manager
	Bus      *event.Bus
	Logger   *telemetry.Logger
	Provider *MockProvider

	mu     sync.Mutex
	events []event.Event
}

// NewTestHarness creates a harness with in-memory run history and an event
// capture hook already registered.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	logger := TestLogger()
	runs, err := state.NewManager("memory", "", logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { runs.Close() })

	h := &TestHarness{
		T:        t,
		Config:   TestConfig(),
		Runs:     runs,
		Bus:      event.NewBus(logger),
		Logger:   logger,
		Provider: &MockProvider{},
	}

	h.CaptureFrom(h.Bus)

	return h
}

// SetResponses queues mock provider responses.
func (h *TestHarness) SetResponses(responses ...*provider.Response) {
	h.Provider.Responses = responses
}

// CaptureFrom registers the harness capture hook on another bus, so events
// from executors that own their own bus land in the same capture.
func (h *TestHarness) CaptureFrom(bus *event.Bus) {
	bus.Register(event.NewFuncHook("test-capture", nil, true, func(ev event.Event) error {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
		return nil
	}))
}

// Events returns a snapshot of the captured events.
func (h *TestHarness) Events() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

// AssertEventEmitted checks that an event with the given type was emitted.
func (h *TestHarness) AssertEventEmitted(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) == 0 {
		h.T.Errorf("expected event %q to be emitted", eventType)
	}
}

// AssertNoEvent checks that an event type was NOT emitted.
func (h *TestHarness) AssertNoEvent(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) > 0 {
		h.T.Errorf("expected event %q NOT to be emitted, but it was", eventType)
	}
}

// EventCount returns the number of captured events with the given type.
func (h *TestHarness) EventCount(eventType event.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, e := range h.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stxkxs/troupe/internal/telemetry"
)

// Store persists run records.
type Store interface {
	// Save writes or overwrites a record.
	Save(rec *Record) error
	// Get loads a record. The bool is false when no record has that id.
	Get(id string) (*Record, bool, error)
	// List returns records ordered newest first. A limit below one means
	// no limit.
	List(limit int) ([]*Record, error)
	// Delete removes a record. Deleting a missing id is not an error.
	Delete(id string) error

	Close() error
}

// NewStore selects a storage driver: "sqlite" or "memory". An empty driver
// selects memory.
func NewStore(driver, path string) (Store, error) {
	switch driver {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported state driver: %s", driver)
	}
}

// Manager wraps a Store with run lifecycle helpers. History is advisory:
// storage failures are logged, never propagated into the run they describe.
// A nil Manager is safe to use, as is passing a nil Record to Complete or
// Fail, so run recording stays strictly optional for callers.
type Manager struct {
	store  Store
	logger *telemetry.Logger
}

// NewManager builds a manager on the configured driver.
func NewManager(driver, path string, logger *telemetry.Logger) (*Manager, error) {
	store, err := NewStore(driver, path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = telemetry.NewLogger(false)
	}
	return &Manager{store: store, logger: logger}, nil
}

// Begin records the start of a run and returns its record.
func (m *Manager) Begin(kind RunKind, name string) *Record {
	if m == nil {
		return nil
	}
	rec := &Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      name,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	m.save(rec)
	return rec
}

// Complete marks the run completed with its final output.
func (m *Manager) Complete(rec *Record, output string) {
	if m == nil || rec == nil {
		return
	}
	now := time.Now().UTC()
	rec.Status = RunCompleted
	rec.EndedAt = &now
	rec.Output = output
	m.save(rec)
}

// Fail marks the run failed with the causing error.
func (m *Manager) Fail(rec *Record, runErr error) {
	if m == nil || rec == nil {
		return
	}
	now := time.Now().UTC()
	rec.Status = RunFailed
	rec.EndedAt = &now
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	m.save(rec)
}

// Get loads one run record.
func (m *Manager) Get(id string) (*Record, bool, error) {
	if m == nil {
		return nil, false, nil
	}
	return m.store.Get(id)
}

// List returns run records, newest first.
func (m *Manager) List(limit int) ([]*Record, error) {
	if m == nil {
		return nil, nil
	}
	return m.store.List(limit)
}

// Delete removes one run record.
func (m *Manager) Delete(id string) error {
	if m == nil {
		return nil
	}
	return m.store.Delete(id)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.store.Close()
}

func (m *Manager) save(rec *Record) {
	if err := m.store.Save(rec); err != nil {
		m.logger.Warn("Run record write failed",
			"run_id", rec.ID,
			"kind", string(rec.Kind),
			"name", rec.Name,
			"error", err,
		)
	}
}

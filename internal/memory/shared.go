package memory

import "sync"

// CrewMemory layers per-agent stores over a crew-wide shared store. Agents
// exchange knowledge through the shared store; each agent additionally gets
// a private store created on first use.
type CrewMemory struct {
	mu       sync.Mutex
	cfg      Config
	shared   *Store
	perAgent map[string]*Store
}

// NewCrewMemory creates crew memory where every store uses the same config.
func NewCrewMemory(cfg Config) *CrewMemory {
	return &CrewMemory{
		cfg:      cfg,
		shared:   NewStore(cfg),
		perAgent: make(map[string]*Store),
	}
}

// Shared returns the crew-wide store.
func (cm *CrewMemory) Shared() *Store {
	return cm.shared
}

// ForAgent returns the agent's private store, creating it on first use.
func (cm *CrewMemory) ForAgent(agentID string) *Store {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	store, ok := cm.perAgent[agentID]
	if !ok {
		store = NewStore(cm.cfg)
		cm.perAgent[agentID] = store
	}
	return store
}

// StoreShared writes to the crew-wide store.
func (cm *CrewMemory) StoreShared(key string, value interface{}) error {
	return cm.shared.Store(key, value)
}

// RetrieveShared reads from the crew-wide store.
func (cm *CrewMemory) RetrieveShared(key string) (Item, bool) {
	return cm.shared.Retrieve(key)
}

// SearchShared searches the crew-wide store.
func (cm *CrewMemory) SearchShared(query string, limit int) []Item {
	return cm.shared.Search(query, limit)
}

// Close closes every store.
func (cm *CrewMemory) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	if err := cm.shared.Close(); err != nil {
		firstErr = err
	}
	for _, store := range cm.perAgent {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

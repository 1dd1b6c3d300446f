// Package memory provides the keyed store agents and crews use to carry
// context across interactions: bounded capacity with least-recently-accessed
// eviction, optional TTL expiry, and case-insensitive substring search.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// Memory types.
const (
	ShortTerm = "short_term"
	LongTerm  = "long_term"
	Entity    = "entity"
	Episodic  = "episodic"
)

// Config describes a store's behavior.
type Config struct {
	Type          string `yaml:"type" json:"type"` // short_term, long_term, entity, episodic
	MaxItems      int    `yaml:"max_items" json:"max_items"`
	UseEmbeddings bool   `yaml:"use_embeddings" json:"use_embeddings"`
	TTLSeconds    int    `yaml:"ttl_s" json:"ttl_s"`
	Persist       bool   `yaml:"persist" json:"persist"`
	StoragePath   string `yaml:"storage_path" json:"storage_path"`
}

// Item is a single stored entry.
type Item struct {
	Key          string                 `json:"key"`
	Value        interface{}            `json:"value"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessed time.Time              `json:"last_accessed"`
	AccessCount  int64                  `json:"access_count"`
	Embedding    []float32              `json:"embedding,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Storage mirrors items to a durable backend. Implementations must be safe
// for concurrent use.
type Storage interface {
	SaveItem(item Item) error
	LoadAll() ([]Item, error)
	DeleteItem(key string) error
	Clear() error
	Close() error
}

// Store is a concurrency-safe keyed store. When a new key arrives at
// capacity, the entry with the smallest LastAccessed is evicted. Expiry is
// lazy: expired entries are dropped when touched by Retrieve or Search.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	items   map[string]*Item
	ttl     time.Duration
	storage Storage
	now     func() time.Time // overridable in tests
}

// NewStore creates an in-memory store from the config. MaxItems <= 0 means
// unbounded; TTLSeconds <= 0 disables expiry.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:   cfg,
		items: make(map[string]*Item),
		ttl:   time.Duration(cfg.TTLSeconds) * time.Second,
		now:   time.Now,
	}
}

// NewStoreWithStorage creates a store mirrored to the given storage backend
// and seeds it with previously persisted items.
func NewStoreWithStorage(cfg Config, storage Storage) (*Store, error) {
	s := NewStore(cfg)
	s.storage = storage

	items, err := storage.LoadAll()
	if err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to load persisted memory", err)
	}
	for i := range items {
		item := items[i]
		s.items[item.Key] = &item
	}
	return s, nil
}

// Store inserts or replaces an entry. Replacing preserves CreatedAt and the
// access counter; inserting at capacity evicts the least recently accessed
// entry first.
func (s *Store) Store(key string, value interface{}) error {
	return s.StoreWithMetadata(key, value, nil)
}

// StoreWithMetadata is Store with caller-supplied metadata attached.
func (s *Store) StoreWithMetadata(key string, value interface{}, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	if existing, ok := s.items[key]; ok {
		existing.Value = value
		existing.LastAccessed = ts
		if metadata != nil {
			existing.Metadata = metadata
		}
		return s.mirror(*existing)
	}

	if s.cfg.MaxItems > 0 && len(s.items) >= s.cfg.MaxItems {
		s.evictOldest()
	}

	item := &Item{
		Key:          key,
		Value:        value,
		CreatedAt:    ts,
		LastAccessed: ts,
		Metadata:     metadata,
	}
	s.items[key] = item
	return s.mirror(*item)
}

// Retrieve returns a copy of the entry and bumps its access statistics.
// Expired entries are removed and reported as absent.
func (s *Store) Retrieve(key string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return Item{}, false
	}
	if s.expired(item) {
		delete(s.items, key)
		s.unmirror(key)
		return Item{}, false
	}

	item.LastAccessed = s.now()
	item.AccessCount++
	// Best-effort mirror of the updated access stats.
	_ = s.mirror(*item)
	return *item, true
}

// Delete removes an entry. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	if s.storage != nil {
		if err := s.storage.DeleteItem(key); err != nil {
			return troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to delete persisted item", err)
		}
	}
	return nil
}

// Search returns up to limit non-expired items whose key or stringified
// value contains query case-insensitively, ordered by access count
// descending with ties broken by most recent access.
func (s *Store) Search(query string, limit int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)
	matches := make([]Item, 0)
	for key, item := range s.items {
		if s.expired(item) {
			delete(s.items, key)
			s.unmirror(key)
			continue
		}
		if strings.Contains(strings.ToLower(item.Key), needle) ||
			strings.Contains(strings.ToLower(stringify(item.Value)), needle) {
			matches = append(matches, *item)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].AccessCount != matches[j].AccessCount {
			return matches[i].AccessCount > matches[j].AccessCount
		}
		return matches[i].LastAccessed.After(matches[j].LastAccessed)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Len returns the number of stored entries, including not-yet-collected
// expired ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns all stored keys in no particular order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes all entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*Item)
	if s.storage != nil {
		if err := s.storage.Clear(); err != nil {
			return troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to clear persisted memory", err)
		}
	}
	return nil
}

// Close releases the storage backend, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage == nil {
		return nil
	}
	return s.storage.Close()
}

// evictOldest removes the entry with the smallest LastAccessed.
// Caller holds the write lock.
func (s *Store) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, item := range s.items {
		if first || item.LastAccessed.Before(oldest) {
			oldestKey = key
			oldest = item.LastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(s.items, oldestKey)
		s.unmirror(oldestKey)
	}
}

func (s *Store) expired(item *Item) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(item.CreatedAt) > s.ttl
}

func (s *Store) mirror(item Item) error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.SaveItem(item); err != nil {
		return troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to persist item", err)
	}
	return nil
}

// unmirror is best-effort: eviction and expiry never fail the caller.
func (s *Store) unmirror(key string) {
	if s.storage == nil {
		return
	}
	_ = s.storage.DeleteItem(key)
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

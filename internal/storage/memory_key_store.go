package storage

import (
	"context"
	"sync"
)

// InMemoryKeyStore provides thread-safe in-memory storage for API keys.
// Used in tests and local development; production deployments use
// PersistentKeyStore.
type InMemoryKeyStore struct {
	// keys maps key strings to APIKey structs for fast lookup
	keys map[string]*APIKey
	// keysByID maps key IDs to APIKey structs for ID-based operations
	keysByID map[string]*APIKey
	// keysByService maps service IDs to slices of APIKey structs for filtering
	keysByService map[string][]*APIKey
	// mutex protects concurrent access to all maps
	mutex sync.RWMutex
}

// NewInMemoryKeyStore creates a new thread-safe in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys:          make(map[string]*APIKey),
		keysByID:      make(map[string]*APIKey),
		keysByService: make(map[string][]*APIKey),
	}
}

// FindByKey retrieves an API key by its key value.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	apiKey, exists := s.keys[key]
	if !exists {
		return nil, false
	}

	// Return a copy to prevent external modification
	keyCopy := *apiKey

	return &keyCopy, true
}

// Add stores a new API key.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Check if key already exists by ID or key string
	if _, exists := s.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.keys[apiKey.Key]; exists {
		return ErrKeyAlreadyExists
	}

	// Create a copy to prevent external modification
	keyCopy := *apiKey

	// Store in all maps
	s.keys[keyCopy.Key] = &keyCopy
	s.keysByID[keyCopy.ID] = &keyCopy

	// Add to service map
	s.keysByService[keyCopy.ServiceID] = append(s.keysByService[keyCopy.ServiceID], &keyCopy)

	return nil
}

// Update modifies an existing API key.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Check if key exists
	existingKey, exists := s.keysByID[apiKey.ID]
	if !exists {
		return ErrKeyNotFound
	}

	// Remove from service map (old service)
	s.removeFromServiceMap(existingKey.ServiceID, existingKey.ID)

	// Remove from key string map if key changed
	if existingKey.Key != apiKey.Key {
		delete(s.keys, existingKey.Key)
	}

	// Create a copy to prevent external modification
	keyCopy := *apiKey

	// Update all maps
	s.keys[keyCopy.Key] = &keyCopy
	s.keysByID[keyCopy.ID] = &keyCopy

	// Add to service map (new service)
	s.keysByService[keyCopy.ServiceID] = append(s.keysByService[keyCopy.ServiceID], &keyCopy)

	return nil
}

// Delete removes an API key.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Check if key exists
	existingKey, exists := s.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	// Remove from all maps
	delete(s.keys, existingKey.Key)
	delete(s.keysByID, keyID)

	// Remove from service map
	s.removeFromServiceMap(existingKey.ServiceID, keyID)

	return nil
}

// ListByService returns all API keys issued to one calling service.
func (s *InMemoryKeyStore) ListByService(_ context.Context, serviceID string) ([]*APIKey, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys, exists := s.keysByService[serviceID]
	if !exists {
		return []*APIKey{}, nil // Return empty slice for unknown services
	}

	// Return copies to prevent external modification
	result := make([]*APIKey, len(keys))
	for i, key := range keys {
		keyCopy := *key
		result[i] = &keyCopy
	}

	return result, nil
}

// removeFromServiceMap removes a key from the service map by key ID.
// Caller must hold write lock.
func (s *InMemoryKeyStore) removeFromServiceMap(serviceID, keyID string) {
	keys := s.keysByService[serviceID]
	for i, key := range keys {
		if key.ID == keyID {
			// Remove element at index i
			s.keysByService[serviceID] = append(keys[:i], keys[i+1:]...)

			break
		}
	}

	// Clean up empty service entries
	if len(s.keysByService[serviceID]) == 0 {
		delete(s.keysByService, serviceID)
	}
}

// Package memory provides an in-process storage slot backend.
package memory

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
)

// Ensure Storage implements the port.
var _ contributions.Storage = (*Storage)(nil)

// Storage keeps slot payloads in a map. Contents are lost when the process exits.
type Storage struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{
		slots: make(map[string][]byte),
	}
}

// Read returns a copy of the payload stored under key.
func (s *Storage) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Write replaces the payload stored under key.
func (s *Storage) Write(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = append([]byte(nil), payload...)
	return nil
}

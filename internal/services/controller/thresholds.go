package controller

import (
	"sync"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

// ThresholdStore holds the live ThresholdSet. Updates are visible to the next Get.
type ThresholdStore struct {
	mu  sync.RWMutex
	set entities.ThresholdSet
}

func NewThresholdStore(initial entities.ThresholdSet) *ThresholdStore {
	return &ThresholdStore{set: initial}
}

func (s *ThresholdStore) Get() entities.ThresholdSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Update merges the supplied fields and returns the resulting full set.
func (s *ThresholdStore) Update(p entities.PartialThresholdSet) (entities.ThresholdSet, error) {
	if err := p.Validate(); err != nil {
		return s.Get(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = s.set.Merge(p)
	return s.set, nil
}

// Replace swaps the whole set, used when restoring persisted settings.
func (s *ThresholdStore) Replace(t entities.ThresholdSet) {
	s.mu.Lock()
	s.set = t
	s.mu.Unlock()
}

package catalog

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenStore tracks record IDs that were already processed, so repeated
// relay deliveries of the same record can be recognized cheaply. A
// Bloom filter answers the common "never seen" case without touching
// the exact set; the LRU bounds memory by evicting the oldest IDs.
type SeenStore struct {
	ids               map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewSeenStore creates a seen-ID store with the given capacity and
// Bloom false positive rate.
func NewSeenStore(capacity int, falsePositiveRate float64) *SeenStore {
	if capacity <= 0 {
		panic("capacity value out of range for uint conversion")
	}

	lruCache, _ := lru.New[string, struct{}](capacity)

	return &SeenStore{
		ids:               make(map[string]struct{}),
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		lru:               lruCache,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Has checks whether a record ID was seen before.
func (s *SeenStore) Has(recordID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.bloom.TestString(recordID) {
		return false
	}

	_, exists := s.ids[recordID]
	return exists
}

// Add marks a record ID as seen.
func (s *SeenStore) Add(recordID string) {
	if recordID == "" {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.ids[recordID]; exists {
		return
	}

	s.ids[recordID] = struct{}{}
	s.bloom.AddString(recordID)
	s.lru.Add(recordID, struct{}{})

	if len(s.ids) > s.capacity {
		s.evictOldest()
	}
}

// Size returns the number of record IDs currently tracked.
func (s *SeenStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.ids)
}

// Clear resets the store.
func (s *SeenStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.ids = make(map[string]struct{})
	s.bloom = bloom.NewWithEstimates(uint(s.capacity), s.falsePositiveRate)
	s.lru.Purge()
}

func (s *SeenStore) evictOldest() {
	oldestID, _, ok := s.lru.GetOldest()
	if !ok {
		return
	}

	delete(s.ids, oldestID)
	s.lru.Remove(oldestID)
	// The bloom filter cannot forget evicted IDs; the resulting false
	// positives are resolved by the exact set lookup.
}

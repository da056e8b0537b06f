package catalog

import (
	"fmt"
	"testing"
)

func TestSeenStore_Basic(t *testing.T) {
	store := NewSeenStore(100, 0.001)

	if store.Has("rec1") {
		t.Error("Empty store should not have any IDs")
	}
	if store.Size() != 0 {
		t.Errorf("Empty store size should be 0, got %d", store.Size())
	}

	store.Add("rec1")
	if !store.Has("rec1") {
		t.Error("Store should have rec1 after adding")
	}

	store.Add("rec1")
	if store.Size() != 1 {
		t.Errorf("Store size should still be 1 after adding duplicate, got %d", store.Size())
	}

	store.Add("")
	if store.Size() != 1 {
		t.Errorf("Empty IDs should not be stored, size = %d", store.Size())
	}
}

func TestSeenStore_Clear(t *testing.T) {
	store := NewSeenStore(100, 0.001)

	for _, id := range []string{"rec1", "rec2", "rec3"} {
		store.Add(id)
	}

	store.Clear()

	if store.Size() != 0 {
		t.Errorf("Store size should be 0 after clear, got %d", store.Size())
	}
	if store.Has("rec1") {
		t.Error("Store should not have rec1 after clear")
	}
}

func TestSeenStore_CapacityEviction(t *testing.T) {
	capacity := 5
	store := NewSeenStore(capacity, 0.001)

	for i := 0; i < capacity+3; i++ {
		store.Add(fmt.Sprintf("rec%d", i))
	}

	if store.Size() > capacity {
		t.Errorf("Store size should not exceed %d, got %d", capacity, store.Size())
	}

	// The most recently added IDs survive eviction.
	for _, id := range []string{"rec5", "rec6", "rec7"} {
		if !store.Has(id) {
			t.Errorf("Store should have recent ID %s", id)
		}
	}
}

func TestSeenStore_FalsePositiveRate(t *testing.T) {
	store := NewSeenStore(1000, 0.001)

	for i := 0; i < 500; i++ {
		store.Add(fmt.Sprintf("rec_%d", i))
	}

	falsePositives := 0
	probes := 1000
	for i := 0; i < probes; i++ {
		if store.Has(fmt.Sprintf("absent_%d", i)) {
			falsePositives++
		}
	}

	// The exact set behind the bloom filter makes lookups precise.
	if falsePositives != 0 {
		t.Errorf("Has() returned %d false positives, want 0", falsePositives)
	}
}

func BenchmarkSeenStore_Add(b *testing.B) {
	store := NewSeenStore(10000, 0.001)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Add(fmt.Sprintf("rec_%d", i))
	}
}

func BenchmarkSeenStore_Has(b *testing.B) {
	store := NewSeenStore(10000, 0.001)
	for i := 0; i < 1000; i++ {
		store.Add(fmt.Sprintf("rec_%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Has(fmt.Sprintf("rec_%d", i%1000))
	}
}

package cache

import (
	"sync/atomic"

	"github.com/chandrahoro/reading-service/internal/model"
)

// StatsSink holds hit/miss counters for one cache instance. It is injected
// at construction so tests and multi-instance deployments never share
// counter state. Counters only move backward through Reset.
type StatsSink struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStatsSink returns a zeroed sink.
func NewStatsSink() *StatsSink { return &StatsSink{} }

func (s *StatsSink) Hit()  { s.hits.Add(1) }
func (s *StatsSink) Miss() { s.misses.Add(1) }

// Reset zeroes both counters. Administrative use only.
func (s *StatsSink) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
}

// Snapshot computes the derived stats at call time. HitRate is 0 when no
// requests have been counted.
func (s *StatsSink) Snapshot() model.CacheStats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return model.CacheStats{
		Hits:          hits,
		Misses:        misses,
		HitRate:       rate,
		TotalRequests: total,
	}
}

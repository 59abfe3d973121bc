package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ubcc/internal/models"
)

// MemoryStore is an in-memory Store used by tests and dry runs. It provides
// the same idempotent timestamp-keyed semantics as the DuckDB store.
type MemoryStore struct {
	mu      sync.RWMutex
	candles map[int64]models.Candle
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candles: make(map[int64]models.Candle),
	}
}

// Upsert stores candles keyed by timestamp, replacing existing entries.
func (s *MemoryStore) Upsert(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candles {
		s.candles[c.Timestamp.UTC().Unix()] = c
	}
	return nil
}

// Query returns candles in [start, end), oldest first.
func (s *MemoryStore) Query(ctx context.Context, start, end time.Time) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startUnix, endUnix := start.UTC().Unix(), end.UTC().Unix()
	var result []models.Candle
	for ts, c := range s.candles {
		if ts >= startUnix && ts < endUnix {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Count returns the number of stored candles in [start, end).
func (s *MemoryStore) Count(ctx context.Context, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startUnix, endUnix := start.UTC().Unix(), end.UTC().Unix()
	count := 0
	for ts := range s.candles {
		if ts >= startUnix && ts < endUnix {
			count++
		}
	}
	return count, nil
}

// Bounds returns the oldest and newest stored timestamps.
func (s *MemoryStore) Bounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.candles) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	var minTS, maxTS int64
	first := true
	for ts := range s.candles {
		if first {
			minTS, maxTS = ts, ts
			first = false
			continue
		}
		if ts < minTS {
			minTS = ts
		}
		if ts > maxTS {
			maxTS = ts
		}
	}
	return time.Unix(minTS, 0).UTC(), time.Unix(maxTS, 0).UTC(), true, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

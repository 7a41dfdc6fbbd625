package activity

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/clockx"
)

const shardCount = 64

type shard struct {
	mu    sync.Mutex
	last  map[string]time.Time
	ended map[string]time.Time
}

// MemoryTracker keeps activity in process, sharded by subject so unrelated
// sessions never contend on the same lock.
type MemoryTracker struct {
	cfg    Config
	clock  clockx.Clock
	shards [shardCount]shard
}

func NewMemoryTracker(cfg Config, clock clockx.Clock) *MemoryTracker {
	if clock == nil {
		clock = clockx.Real()
	}
	t := &MemoryTracker{cfg: cfg.withDefaults(), clock: clock}
	for i := range t.shards {
		t.shards[i].last = make(map[string]time.Time)
		t.shards[i].ended = make(map[string]time.Time)
	}
	return t
}

func (t *MemoryTracker) shardFor(subject string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return &t.shards[h.Sum32()%shardCount]
}

func (t *MemoryTracker) Check(_ context.Context, subject string) error {
	now := t.clock.Now()
	s := t.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.ended[subject]; ok {
		if now.Sub(at) <= t.cfg.Retention {
			return ErrSessionExpired
		}
		delete(s.ended, subject)
	}

	last, ok := s.last[subject]
	if !ok {
		s.last[subject] = now
		return nil
	}
	if now.Sub(last) > t.cfg.IdleTimeout {
		delete(s.last, subject)
		s.ended[subject] = now
		return ErrIdleTimeout
	}
	return nil
}

func (t *MemoryTracker) Touch(_ context.Context, subject string) error {
	now := t.clock.Now()
	s := t.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ended[subject]; ok {
		return nil
	}
	s.last[subject] = now
	return nil
}

func (t *MemoryTracker) Begin(_ context.Context, subject string) error {
	now := t.clock.Now()
	s := t.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ended, subject)
	s.last[subject] = now
	return nil
}

func (t *MemoryTracker) End(_ context.Context, subject string) error {
	s := t.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.last, subject)
	return nil
}

func (t *MemoryTracker) Sweep(ctx context.Context) (int, error) {
	now := t.clock.Now()
	removed := 0
	for i := range t.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s := &t.shards[i]
		s.mu.Lock()
		for sub, last := range s.last {
			if now.Sub(last) > t.cfg.RecordTTL {
				delete(s.last, sub)
				removed++
			}
		}
		for sub, at := range s.ended {
			if now.Sub(at) > t.cfg.Retention {
				delete(s.ended, sub)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len reports the number of live records and ended markers.
func (t *MemoryTracker) Len() (records, ended int) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		records += len(s.last)
		ended += len(s.ended)
		s.mu.Unlock()
	}
	return records, ended
}

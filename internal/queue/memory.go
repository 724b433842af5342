package queue

import (
	"context"
	"sync"
	"time"

	"trackio.app/trackio/internal/model"
)

// MemoryQueue is an in-process Queue with the same head-prefix semantics as
// the Redis implementation. Used in tests and local development.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Item
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, msg model.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, StructuredItem(msg))
	return nil
}

// PushRaw appends serialized text, mimicking a producer that writes to the
// backend directly.
func (q *MemoryQueue) PushRaw(_ context.Context, s string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, RawItem(s))
	return nil
}

func (q *MemoryQueue) Peek(_ context.Context, offset, count int64) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if offset >= int64(len(q.items)) || count <= 0 {
		return nil, nil
	}
	end := offset + count
	if end > int64(len(q.items)) {
		end = int64(len(q.items))
	}
	out := make([]Item, end-offset)
	copy(out, q.items[offset:end])
	return out, nil
}

func (q *MemoryQueue) Trim(_ context.Context, count int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if count <= 0 {
		return nil
	}
	if count >= int64(len(q.items)) {
		q.items = nil
		return nil
	}
	q.items = q.items[count:]
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// MemoryLocker is an in-process Locker with TTL expiry, matching the
// set-if-absent contract of the Redis implementation.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]time.Time)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if deadline, held := l.locks[key]; held && time.Now().Before(deadline) {
		return false, nil
	}
	l.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}

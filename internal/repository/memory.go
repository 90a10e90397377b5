package repository

import (
	"context"
	"sync"
	"time"

	"grillbook/internal/models"
)

// MemoryRepository is the in-process counterpart of RedisRepository.
type MemoryRepository struct {
	mu        sync.Mutex
	list      []*models.Reservation
	listUntil time.Time
	listTTL   time.Duration
	attempts  map[string]*attemptEntry
	now       func() time.Time
}

type attemptEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryRepository(listTTL time.Duration) *MemoryRepository {
	return &MemoryRepository{
		listTTL:  listTTL,
		attempts: make(map[string]*attemptEntry),
		now:      time.Now,
	}
}

func (r *MemoryRepository) GetList(_ context.Context) ([]*models.Reservation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.list == nil || (r.listTTL > 0 && r.now().After(r.listUntil)) {
		return nil, false, nil
	}
	return snapshot(r.list), true, nil
}

func (r *MemoryRepository) SetList(_ context.Context, list []*models.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.list = snapshot(list)
	r.listUntil = r.now().Add(r.listTTL)
	return nil
}

func (r *MemoryRepository) Invalidate(_ context.Context) error {
	r.mu.Lock()
	r.list = nil
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.attempts[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &attemptEntry{expiresAt: now.Add(window)}
		r.attempts[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

func (r *MemoryRepository) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.attempts, key)
	r.mu.Unlock()
	return nil
}

// snapshot copies reservations without their cancellation codes, matching the JSON cache.
func snapshot(list []*models.Reservation) []*models.Reservation {
	out := make([]*models.Reservation, 0, len(list))
	for _, r := range list {
		c := *r
		c.CancellationCode = ""
		out = append(out, &c)
	}
	return out
}

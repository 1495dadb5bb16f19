package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/persistorai/auditseal/internal/models"
	"github.com/persistorai/auditseal/internal/retention"
)

type memoryObject struct {
	data      []byte
	retention *models.RetentionState
}

// MemoryStore is an in-process Store that enforces object lock semantics.
// Intended for dev and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	objects       map[string]*memoryObject
	lockSupported bool
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(lockSupported bool) *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string]*memoryObject),
		lockSupported: lockSupported,
		now:           time.Now,
	}
}

// SetClock overrides the time source used for retention checks.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Put stores data under key. Overwriting an object under active retention is refused.
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte) (*PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.objects[key]; ok && retention.Active(existing.retention, s.now()) {
		return nil, fmt.Errorf("objectstore/memory: overwrite %s: %w", key, models.ErrRetentionActive)
	}

	s.objects[key] = &memoryObject{data: append([]byte(nil), data...)}

	return &PutResult{Size: int64(len(data))}, nil
}

// Get returns a copy of the object at key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("objectstore/memory: %s: %w", key, models.ErrObjectNotFound)
	}

	return append([]byte(nil), obj.data...), nil
}

// Delete removes key unless retention forbids it.
func (s *MemoryStore) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("objectstore/memory: %s: %w", key, models.ErrObjectNotFound)
	}

	if err := retention.CheckDelete(obj.retention, s.now(), opts.BypassGovernance); err != nil {
		return err
	}

	delete(s.objects, key)

	return nil
}

// ApplyRetention sets or extends the retention of key.
func (s *MemoryStore) ApplyRetention(ctx context.Context, key string, state models.RetentionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.lockSupported {
		return fmt.Errorf("objectstore/memory: object lock not supported")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("objectstore/memory: %s: %w", key, models.ErrObjectNotFound)
	}

	if err := retention.CheckReplace(obj.retention, state, s.now(), false); err != nil {
		return err
	}

	obj.retention = &models.RetentionState{Mode: state.Mode, Until: state.Until.UTC()}

	return nil
}

// GetRetentionState returns the current retention of key.
func (s *MemoryStore) GetRetentionState(ctx context.Context, key string) (*models.RetentionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("objectstore/memory: %s: %w", key, models.ErrObjectNotFound)
	}

	if obj.retention == nil {
		return nil, nil
	}

	st := *obj.retention

	return &st, nil
}

// SupportsObjectLock reports the capability the store was created with.
func (s *MemoryStore) SupportsObjectLock(context.Context) (bool, error) {
	return s.lockSupported, nil
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/google/uuid"
)

// InMemoryCancelSignal implements export.CancelSignal using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemoryCancelSignal struct {
	mu        sync.RWMutex
	requests  map[uuid.UUID]time.Time // task -> expiry
	ttl       time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryCancelSignal creates a new in-memory cancel signal.
// It starts a background goroutine that drops expired requests.
func NewInMemoryCancelSignal(ttl time.Duration) *InMemoryCancelSignal {
	if ttl <= 0 {
		ttl = DefaultCancelTTL
	}
	s := &InMemoryCancelSignal{
		requests: make(map[uuid.UUID]time.Time),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

// Request records a cancel request for the task
func (s *InMemoryCancelSignal) Request(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[taskID] = time.Now().Add(s.ttl)
	return nil
}

// IsRequested reports whether an unexpired cancel request exists
func (s *InMemoryCancelSignal) IsRequested(ctx context.Context, taskID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiresAt, ok := s.requests[taskID]
	return ok && time.Now().Before(expiresAt), nil
}

// Clear removes the cancel request for the task
func (s *InMemoryCancelSignal) Clear(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, taskID)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryCancelSignal) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of stored requests
func (s *InMemoryCancelSignal) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

func (s *InMemoryCancelSignal) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryCancelSignal) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, expiresAt := range s.requests {
		if now.After(expiresAt) {
			delete(s.requests, id)
		}
	}
}

// Ensure InMemoryCancelSignal implements export.CancelSignal
var _ export.CancelSignal = (*InMemoryCancelSignal)(nil)

package history

import (
	"context"
	"sync"

	"github.com/mahaj/chat-core/pkg/model"
)

// MemoryStore is the reference Store: a capacity-bounded buffer that evicts
// its oldest entry once full. Reads take a consistent snapshot and may run
// concurrently with appends.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	messages []model.Message
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		messages: make([]model.Message, 0, capacity),
	}
}

func (s *MemoryStore) Append(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, *msg)
	if len(s.messages) > s.capacity {
		// FIFO eviction. Shift in place so the backing array does not
		// pin evicted entries.
		s.messages = append(s.messages[:0], s.messages[1:]...)
	}
	return nil
}

func (s *MemoryStore) Page(_ context.Context, offset, limit int) (Page, error) {
	offset, limit = clampWindow(offset, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.messages)
	if offset >= total {
		return Page{Messages: []model.Message{}, Total: total}, nil
	}

	end := total - offset
	start := end - limit
	if start < 0 {
		start = 0
	}

	items := make([]model.Message, end-start)
	copy(items, s.messages[start:end])

	return Page{Messages: items, Total: total, HasMore: start > 0}, nil
}

// Len reports the current retained count.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

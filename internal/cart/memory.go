package cart

import (
	"context"
	"sync"
)

// MemoryStore keeps carts in process memory. Carts are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Item
}

// NewMemoryStore creates an empty in-memory cart store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]Item)}
}

func (s *MemoryStore) Add(_ context.Context, owner string, item Item) ([]Item, error) {
	if err := validate(owner, item); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[owner]
	found := false
	for i := range lines {
		if lines[i].BookID == item.BookID {
			if lines[i].Quantity > MaxQuantity-item.Quantity {
				return nil, ErrInvalidItem
			}
			lines[i].Quantity += item.Quantity
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, item)
	}
	s.carts[owner] = lines

	return cloneItems(lines), nil
}

func (s *MemoryStore) Items(_ context.Context, owner string) ([]Item, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.carts[owner]), nil
}

func (s *MemoryStore) Clear(_ context.Context, owner string) error {
	if owner == "" {
		return ErrNoOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, owner)
	return nil
}

func cloneItems(lines []Item) []Item {
	out := make([]Item, len(lines))
	copy(out, lines)
	return out
}

package storage

import (
	"errors"
	"slices"
	"sync"
)

const maxDenominations = 16

var (
	// ErrInvalidDenominations indicates the provided denominations violate validation rules.
	ErrInvalidDenominations = errors.New("denominations must contain between 1 and 16 positive integers including 1")
)

var defaultDenominations = []int{90, 30, 24, 10, 6, 2, 1}

// Storage provides access to the denominations used by the dispenser.
type Storage interface {
	GetDenominations() ([]int, error)
	SetDenominations(denominations []int) error
}

// MemoryStorage keeps denominations in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu            sync.RWMutex
	denominations []int
}

// NewMemoryStorage initialises storage with a copy of the default denominations.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		denominations: cloneDescending(defaultDenominations),
	}
}

// DefaultDenominations returns a copy of the default denominations, largest first.
func DefaultDenominations() []int {
	return cloneDescending(defaultDenominations)
}

// GetDenominations returns a defensive copy of the configured denominations, largest first.
func (s *MemoryStorage) GetDenominations() ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneDescending(s.denominations), nil
}

// SetDenominations validates, normalises, and stores the provided denominations.
func (s *MemoryStorage) SetDenominations(denominations []int) error {
	normalized, err := Normalize(denominations)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.denominations = normalized
	s.mu.Unlock()

	return nil
}

// Normalize deduplicates denominations and sorts them in descending order.
// The result must contain the unit denomination 1.
func Normalize(denominations []int) ([]int, error) {
	if len(denominations) == 0 {
		return nil, ErrInvalidDenominations
	}

	unique := make(map[int]struct{}, len(denominations))
	for _, den := range denominations {
		if den <= 0 {
			return nil, ErrInvalidDenominations
		}
		unique[den] = struct{}{}
		if len(unique) > maxDenominations {
			return nil, ErrInvalidDenominations
		}
	}
	if _, ok := unique[1]; !ok {
		return nil, ErrInvalidDenominations
	}

	out := make([]int, 0, len(unique))
	for den := range unique {
		out = append(out, den)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out, nil
}

func cloneDescending(src []int) []int {
	if len(src) == 0 {
		return []int{}
	}

	out := slices.Clone(src)
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

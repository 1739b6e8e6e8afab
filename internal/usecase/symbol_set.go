package usecase

import "sync"

// SymbolSet is the owned registry of tracked instrument IDs. The supervisor
// replaces it after each successful listing; the refresh scheduler snapshots
// it at the start of every pass.
type SymbolSet struct {
	mu      sync.RWMutex
	ordered []string
	index   map[string]struct{}
}

func NewSymbolSet() *SymbolSet {
	return &SymbolSet{index: make(map[string]struct{})}
}

// Replace swaps the tracked universe, preserving the given order and dropping
// duplicates.
func (s *SymbolSet) Replace(symbols []string) {
	ordered := make([]string, 0, len(symbols))
	index := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := index[sym]; dup {
			continue
		}
		index[sym] = struct{}{}
		ordered = append(ordered, sym)
	}

	s.mu.Lock()
	s.ordered = ordered
	s.index = index
	s.mu.Unlock()
}

// Snapshot returns a copy of the tracked symbols in order.
func (s *SymbolSet) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func (s *SymbolSet) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[symbol]
	return ok
}

func (s *SymbolSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

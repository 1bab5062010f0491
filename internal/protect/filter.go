package protect

import "sync"

// Filter is an in-memory blocklist of client addresses. It is local to the
// process; running several instances needs an external shared store.
type Filter struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewFilter returns a filter seeded with the given addresses.
func NewFilter(blocked ...string) *Filter {
	f := &Filter{blocked: make(map[string]struct{}, len(blocked))}
	for _, addr := range blocked {
		if addr != "" {
			f.blocked[addr] = struct{}{}
		}
	}
	return f
}

// IsBlocked reports whether addr is on the blocklist.
func (f *Filter) IsBlocked(addr string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.blocked[addr]
	return ok
}

// Block adds addr to the blocklist.
func (f *Filter) Block(addr string) {
	if addr == "" {
		return
	}
	f.mu.Lock()
	f.blocked[addr] = struct{}{}
	f.mu.Unlock()
}

// Unblock removes addr from the blocklist.
func (f *Filter) Unblock(addr string) {
	f.mu.Lock()
	delete(f.blocked, addr)
	f.mu.Unlock()
}

// Len returns the number of blocked addresses.
func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.blocked)
}

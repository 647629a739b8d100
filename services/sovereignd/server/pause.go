package server

import (
	"strings"
	"sync"
)

// PauseSet tracks modules an operator paused wholesale. It satisfies
// common.PauseView.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet returns an empty pause set.
func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

// IsPaused reports whether module is paused.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[strings.ToLower(module)]
}

// Set pauses or resumes a module.
func (p *PauseSet) Set(module string, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(module))
	if paused {
		p.paused[key] = true
		return
	}
	delete(p.paused, key)
}

// Snapshot lists the paused modules.
func (p *PauseSet) Snapshot() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.paused))
	for k, v := range p.paused {
		out[k] = v
	}
	return out
}

package session

import (
	"fmt"
	"strings"
	"sync"
)

// CredentialPool balances sessions across a fixed set of upstream API keys.
// Assignment is least-loaded with lowest index breaking ties, so a given
// load distribution always produces the same pick.
type CredentialPool struct {
	mu    sync.Mutex
	keys  []string
	inUse []int
}

func NewCredentialPool(keys []string) (*CredentialPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("credential pool requires at least one key")
	}
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("credential pool key %d is blank", i)
		}
	}
	return &CredentialPool{
		keys:  append([]string(nil), keys...),
		inUse: make([]int, len(keys)),
	}, nil
}

// Assign reserves the least-loaded credential and returns its key and index.
// The index must be passed back to Release when the session is done with it.
func (p *CredentialPool) Assign() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	best := 0
	for i := 1; i < len(p.inUse); i++ {
		if p.inUse[i] < p.inUse[best] {
			best = i
		}
	}
	p.inUse[best]++
	return p.keys[best], best
}

// Release returns a credential to the pool. Releasing an index that was
// never assigned is a caller bug, not a runtime condition, so it panics.
func (p *CredentialPool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.inUse) {
		panic(fmt.Sprintf("credential pool: release of invalid index %d", index))
	}
	if p.inUse[index] == 0 {
		panic(fmt.Sprintf("credential pool: release of unassigned index %d", index))
	}
	p.inUse[index]--
}

// Usage returns a copy of the per-credential session counts.
func (p *CredentialPool) Usage() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.inUse...)
}

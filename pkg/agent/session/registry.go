package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mesieou/skedy-ai-sub002/pkg/store"
)

// Registry tracks live sessions in process memory. Memory is the source of
// truth for active sessions; the durable store only backs reads that miss
// here (crashed or cross-process lookups).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup

	durable store.DurableSessionStore
	logger  *slog.Logger

	// RemovalGrace keeps an ended session resolvable for late readers
	// (webhook stragglers, status polls) before it is dropped.
	RemovalGrace time.Duration
}

func NewRegistry(durable store.DurableSessionStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		durable:      durable,
		logger:       logger,
		RemovalGrace: 30 * time.Second,
	}
}

// Add registers a live session. Returns false if the id is already present.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID()]; exists {
		return false
	}
	r.sessions[s.ID()] = s
	r.wg.Add(1)
	return true
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Peek resolves a session snapshot for read-only consumers: live registry
// first, then the durable store. A durable hit is a record, not a live
// session; callers cannot mutate through it.
func (r *Registry) Peek(ctx context.Context, id, businessID string) (*store.SessionRecord, error) {
	if s, ok := r.Get(id); ok {
		return s.Snapshot(), nil
	}
	if r.durable == nil {
		return nil, nil
	}
	return r.durable.Load(ctx, id, businessID)
}

// ScheduleRemove drops an ended session from the registry after the grace
// window. Safe to call more than once; the map delete is idempotent and the
// WaitGroup is released only on actual removal.
func (r *Registry) ScheduleRemove(id string) {
	grace := r.RemovalGrace
	if grace <= 0 {
		r.remove(id)
		return
	}
	time.AfterFunc(grace, func() { r.remove(id) })
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.wg.Done()
		r.logger.Debug("session removed from registry", "session_id", id)
	}
}

// Drain ends every live session and waits for removals, bounded by ctx.
// Used on shutdown so terminal durable flushes get a chance to land.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.End()
		r.remove(s.ID())
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

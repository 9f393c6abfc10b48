package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/storage"
)

// entry is published under Registry.mu once hydrate finishes; readers that
// waited on once see sf and err through the Once.
type entry struct {
	once sync.Once
	sf   *Storefront
	err  error
}

// Registry holds the live sessions. A session is created and hydrated on
// first use and evicted after idleTTL without activity; its state stays in
// the storage bridge and is hydrated again on the next request.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	deps     Deps
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		deps:     deps,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Get returns the storefront for id, creating and hydrating it if needed.
// Concurrent first requests for the same id hydrate once.
func (r *Registry) Get(ctx context.Context, id, clientIP string) (*Storefront, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{}
		r.sessions[id] = e
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	e.once.Do(func() {
		sf := New(id, r.deps)
		err := sf.Hydrate(ctx, clientIP)

		r.mu.Lock()
		if err != nil {
			e.err = err
		} else {
			e.sf = sf
		}
		r.mu.Unlock()
	})

	if e.err != nil {
		r.mu.Lock()
		if r.sessions[id] == e {
			delete(r.sessions, id)
			metrics.ActiveSessions.Set(float64(len(r.sessions)))
		}
		r.mu.Unlock()
		return nil, e.err
	}

	e.sf.Touch(r.now())
	return e.sf, nil
}

// Rotate moves old's persisted state to a new random session ID and returns
// the storefront for it. old is logged out and evicted, so its ID carries
// neither an identity nor state afterwards. Call it before authenticating.
func (r *Registry) Rotate(ctx context.Context, old *Storefront, clientIP string) (*Storefront, error) {
	if err := old.Session.Logout(ctx); err != nil {
		return nil, fmt.Errorf("clear old session: %w", err)
	}
	r.Evict(old.ID)

	id := uuid.NewString()
	dst := sessionBridge(r.deps, id)
	for _, key := range storage.CarriedKeys {
		if err := old.bridge.Move(ctx, key, dst); err != nil {
			return nil, fmt.Errorf("rotate session: %w", err)
		}
	}

	r.deps.Logger.DebugContext(ctx, "session id rotated",
		slog.String("old_session_id", old.ID),
		slog.String("session_id", id),
	)
	return r.Get(ctx, id, clientIP)
}

// Evict drops id from memory.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

// Len returns the number of sessions in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle since before now-idleTTL and returns how many.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.sessions {
		if e.sf == nil {
			continue
		}
		if e.sf.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return evicted
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.deps.Logger.DebugContext(ctx, "evicted idle sessions",
					slog.Int("evicted", n),
					slog.Int("remaining", r.Len()),
				)
			}
		}
	}
}

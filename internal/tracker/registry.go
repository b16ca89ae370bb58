package tracker

import (
	"context"
	"sync"
)

// Registry holds one Session per signed-in user.
type Registry struct {
	ctx  context.Context
	deps Dependencies
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions live under ctx.
func NewRegistry(ctx context.Context, deps Dependencies, opts Options) *Registry {
	return &Registry{
		ctx:      ctx,
		deps:     deps,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, starting one on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[userID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	s, err := NewSession(r.ctx, userID, r.deps, r.opts)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[userID] = s
	r.mu.Unlock()

	s.Start(ctx)
	return s, nil
}

// Lookup returns the user's session without creating one.
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// End closes the user's session, as on sign-out.
func (r *Registry) End(userID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// CloseAll ends every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

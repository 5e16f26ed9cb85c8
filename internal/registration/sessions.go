package registration

import (
	"context"
	"errors"
	"sync"
	"time"

	"trackas/internal/metrics"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("registration session not found")

// Sessions holds live registration sessions keyed by id.
type Sessions struct {
	wf  *Workflow
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates a registry. A non-positive ttl uses DefaultSessionTTL.
func NewSessions(wf *Workflow, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{wf: wf, ttl: ttl, sessions: map[string]*Session{}}
}

// Create registers a new session for classID and loads it. The session is
// registered before loading so that Remove can tear down a slow load.
func (r *Sessions) Create(ctx context.Context, classID string) (*Session, error) {
	s := r.wf.NewSession(classID)

	r.mu.Lock()
	r.sessions[s.id] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		r.Remove(s.id)
		return nil, err
	}
	return s, nil
}

// Get returns a live session and marks it active.
func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if r.wf.now().Sub(s.idleSince()) > r.ttl || s.Closed() {
		r.Remove(id)
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	s.touch()
	s.mu.Unlock()
	return s, nil
}

// Remove closes and forgets a session. Unknown ids are ignored.
func (r *Sessions) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the number of registered sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the ttl.
func (r *Sessions) Sweep() int {
	now := r.wf.now()
	var expired []string
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.ttl {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()
	for _, id := range expired {
		r.Remove(id)
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is done, then closes all sessions.
func (r *Sessions) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.wf.logger.Debug().Int("expired", n).Msg("registration sessions swept")
			}
		}
	}
}

func (r *Sessions) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*Session{}
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

// Package conversation holds the ordered turn log of one chat session.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"courserag/internal/domain"
)

// Session is an append-only log of user and assistant turns. The zero value
// is not usable; create sessions with New.
type Session struct {
	id      string
	created time.Time

	mu    sync.RWMutex
	turns []domain.Turn
	now   func() time.Time
}

// New creates an empty session with a random ID.
func New() *Session {
	return &Session{id: uuid.NewString(), created: time.Now(), now: time.Now}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.created }

// AppendExchange records a completed question and answer as two turns.
func (s *Session) AppendExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	s.turns = append(s.turns,
		domain.Turn{Role: domain.RoleUser, Text: question, At: at},
		domain.Turn{Role: domain.RoleAssistant, Text: answer, At: at},
	)
}

// History returns a copy of the turns in order.
func (s *Session) History() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Reset clears the log.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Registry tracks sessions by ID for multi-client front ends.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create starts and registers a new session.
func (r *Registry) Create() *Session {
	s := New()
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete forgets a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

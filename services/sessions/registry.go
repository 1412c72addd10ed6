// Package sessions tracks browsing sessions. Each session owns one episode
// cache; dropping the session discards the cache with it.
package sessions

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamrelay/services/episodes"
)

// Session is one browsing session.
type Session struct {
	ID        string
	Cache     *episodes.Cache
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry holds live sessions and drops those idle for longer than the TTL.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewRegistry creates a registry. A zero ttl keeps sessions until Drop.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Start runs the idle janitor until Close.
func (r *Registry) Start(interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.cleanup()
			case <-r.stop:
				return
			}
		}
	}()
}

// Close stops the janitor.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

// Create starts a new session with an empty cache.
func (r *Registry) Create() *Session {
	return r.add(uuid.NewString())
}

func (r *Registry) add(id string) *Session {
	now := r.now()
	s := &Session{ID: id, Cache: episodes.NewCache(), CreatedAt: now, lastSeen: now}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	log.Printf("[sessions] created session %s", id)
	return s
}

// Get returns a live session and marks it used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.touch(r.now())
	return s, true
}

// Acquire returns the session named by id, creating one when id is empty,
// malformed or unknown. The returned session's ID is what callers must send
// next time.
func (r *Registry) Acquire(id string) *Session {
	if id != "" {
		if s, ok := r.Get(id); ok {
			return s
		}
		if _, err := uuid.Parse(id); err == nil {
			r.mu.Lock()
			if s, ok := r.sessions[id]; ok {
				r.mu.Unlock()
				s.touch(r.now())
				return s
			}
			r.mu.Unlock()
			return r.add(id)
		}
	}
	return r.Create()
}

// Drop ends a session.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	log.Printf("[sessions] dropped session %s", id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) cleanup() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			pages, links := s.Cache.Stats()
			log.Printf("[sessions] expired idle session %s (pages=%d links=%d)", id, pages, links)
		}
	}
}

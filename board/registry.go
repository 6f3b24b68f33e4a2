package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Registry keeps one Session per open organization, loading boards on
// first use.
type Registry struct {
	store   Store
	persist Persister
	log     *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	loads    singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(store Store, persist Persister, logger *log.Logger) *Registry {
	return &Registry{store: store, persist: persist, log: logger, sessions: make(map[string]*Session)}
}

// Store returns the store boards are loaded from.
func (r *Registry) Store() Store { return r.store }

// Session returns the session of orgID, loading the board if needed.
// Concurrent first requests for the same org share one load.
func (r *Registry) Session(ctx context.Context, orgID string) (*Session, error) {
	if s, ok := r.Loaded(orgID); ok {
		return s, nil
	}
	v, err, _ := r.loads.Do(orgID, func() (any, error) {
		if s, ok := r.Loaded(orgID); ok {
			return s, nil
		}
		state, err := Load(ctx, r.store, orgID)
		if err != nil {
			return nil, err
		}
		s := NewSession(state, r.persist, r.log)
		r.mu.Lock()
		r.sessions[orgID] = s
		r.mu.Unlock()
		r.log.WithField("org", orgID).Info("board loaded")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Loaded returns the session of orgID if the board is already open.
func (r *Registry) Loaded(orgID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[orgID]
	return s, ok
}

// Reload refreshes an open board from the store, discarding any local drift.
func (r *Registry) Reload(ctx context.Context, orgID string) error {
	s, err := r.Session(ctx, orgID)
	if err != nil {
		return err
	}
	return s.Reload(ctx, r.store)
}

// Drop closes the session of orgID, if open, and forgets it.
func (r *Registry) Drop(orgID string) {
	r.mu.Lock()
	s, ok := r.sessions[orgID]
	delete(r.sessions, orgID)
	r.mu.Unlock()
	if ok {
		s.Close()
		r.log.WithField("org", orgID).Info("board dropped")
	}
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}

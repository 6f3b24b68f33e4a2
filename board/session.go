package board

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ChangeReloaded is published when a session swaps in a freshly loaded State.
const ChangeReloaded ChangeKind = "reloaded"

// ErrSessionClosed is returned by Do after Close.
var ErrSessionClosed = errors.New("board session closed")

// Session owns one State and its Coordinator and serializes every access
// through a single event-loop goroutine. Persistence runs elsewhere and
// never holds up the loop.
type Session struct {
	coord *Coordinator
	ops   chan func()
	done  chan struct{}
	once  sync.Once
}

// NewSession starts the event loop for state.
func NewSession(state *State, persist Persister, logger *log.Logger) *Session {
	s := &Session{
		coord: NewCoordinator(state, persist, logger),
		ops:   make(chan func()),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// Do runs fn on the event loop and waits for its result. If ctx ends first
// Do returns ctx.Err(); fn may still run afterwards if it was already queued.
func (s *Session) Do(ctx context.Context, fn func(c *Coordinator) error) error {
	errc := make(chan error, 1)
	op := func() { errc <- fn(s.coord) }
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers for change notifications of this session. The
// subscription survives reloads.
func (s *Session) Subscribe(ctx context.Context, buffer int) (*Subscription[Change], error) {
	var sub *Subscription[Change]
	err := s.Do(ctx, func(c *Coordinator) error {
		sub = c.state.Subscribe(buffer)
		return nil
	})
	return sub, err
}

// Reload replaces the session's State with a fresh copy from st. Any drag
// in progress is cancelled.
func (s *Session) Reload(ctx context.Context, st Loader) error {
	var orgID string
	if err := s.Do(ctx, func(c *Coordinator) error {
		orgID = c.state.Organization().ID
		return nil
	}); err != nil {
		return err
	}
	next, err := Load(ctx, st, orgID)
	if err != nil {
		return err
	}
	return s.Do(ctx, func(c *Coordinator) error {
		next.changes = c.state.changes
		c.DragCancel()
		c.state = next
		next.notify(Change{Kind: ChangeReloaded})
		return nil
	})
}

// Close stops the event loop.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrHumanRoleRequired = errors.New("participant mode requires a human role")
)

// entry couples live state with its run serialization lock and the
// interrupt flag, which is written without taking any lock.
type entry struct {
	mu          sync.Mutex // held for the duration of one run
	state       *conversation.SessionState
	interrupted atomic.Bool
	lastTouch   atomic.Int64 // unix nanos, written under read locks
}

// Store is the keyed registry of live sessions and the single point of
// mutation for their state.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *slog.Logger
}

// NewStore bootstraps the in-memory session registry.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		log:     slog.With("component", "session"),
	}
}

// Create registers a new session, assigning id and timestamps.
func (s *Store) Create(_ context.Context, st conversation.SessionState) (conversation.SessionState, error) {
	if st.Mode == conversation.ModeParticipant && !st.HumanRole.IsAgent() {
		return conversation.SessionState{}, ErrHumanRoleRequired
	}

	now := time.Now().UTC()
	st.ID = uuid.NewString()
	st.CreatedAt = now
	st.UpdatedAt = now

	e := &entry{state: &st}
	e.lastTouch.Store(now.UnixNano())

	s.mu.Lock()
	s.entries[st.ID] = e
	s.mu.Unlock()

	return snapshot(&st)
}

// Get returns a deep copy of the session state; callers never alias the
// live aggregate.
func (s *Store) Get(_ context.Context, id string) (conversation.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return conversation.SessionState{}, ErrSessionNotFound
	}
	e.lastTouch.Store(time.Now().UnixNano())
	return snapshot(e.state)
}

// Mutate applies fn to the live state under the store lock and returns the
// resulting snapshot. fn must not block.
func (s *Store) Mutate(_ context.Context, id string, fn func(*conversation.SessionState) error) (conversation.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return conversation.SessionState{}, ErrSessionNotFound
	}
	if err := fn(e.state); err != nil {
		return conversation.SessionState{}, err
	}
	e.state.UpdatedAt = time.Now().UTC()
	e.lastTouch.Store(e.state.UpdatedAt.UnixNano())
	return snapshot(e.state)
}

// Remove drops a session from the registry.
func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.entries, id)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs lists the live session ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// BeginRun acquires the session's exclusive run lock, blocking until any
// in-flight run for the same session reaches its pause point. The returned
// release func is safe to call more than once.
func (s *Store) BeginRun(_ context.Context, id string) (func(), error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	e.lastTouch.Store(time.Now().UnixNano())

	var once sync.Once
	return func() { once.Do(e.mu.Unlock) }, nil
}

// Interrupt marks the session for cancellation at the next safe point and
// requests the close-out evaluation. Reports whether the session exists.
func (s *Store) Interrupt(id string) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.interrupted.Store(true)
	_, err := s.Mutate(context.Background(), id, func(st *conversation.SessionState) error {
		st.Interrupted = true
		st.StopRequested = true
		return nil
	})
	return err == nil
}

// Interrupted reports the cancellation flag without taking the store lock;
// the executor polls this per streamed chunk.
func (s *Store) Interrupted(id string) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return e.interrupted.Load()
}

// ClearInterrupt resets the cancellation flag; called unconditionally when
// a run ends.
func (s *Store) ClearInterrupt(id string) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.interrupted.Store(false)
	_, _ = s.Mutate(context.Background(), id, func(st *conversation.SessionState) error {
		st.Interrupted = false
		return nil
	})
}

// StartSweeper evicts sessions idle longer than ttl. A ttl of zero or less
// disables eviction entirely.
func (s *Store) StartSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.sweep(now, ttl); n > 0 {
					s.log.Info("evicted idle sessions", "count", n, "ttl", ttl)
				}
			}
		}
	}()
}

// sweep removes idle entries, skipping any session with a run in flight.
func (s *Store) sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if now.Sub(time.Unix(0, e.lastTouch.Load())) < ttl {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		e.mu.Unlock()
		delete(s.entries, id)
		evicted++
	}
	return evicted
}

func snapshot(src *conversation.SessionState) (conversation.SessionState, error) {
	var out conversation.SessionState
	if err := copier.CopyWithOption(&out, src, copier.Option{DeepCopy: true}); err != nil {
		return conversation.SessionState{}, fmt.Errorf("snapshot session state: %w", err)
	}
	return out, nil
}

package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/harun/kodok/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	EvictReasonIdle    = "idle"
	EvictReasonEnded   = "ended"
	EvictReasonDropped = "dropped"
)

type Options struct {
	HistoryLimit int
	// Clock stamps new turns. Defaults to time.Now.
	Clock func() time.Time
}

// Store maps conversation keys to their bounded history.
type Store struct {
	mu       sync.RWMutex
	sessions map[Key]*History
	locks    *lockRegistry
	limit    int
	now      func() time.Time
}

func NewStore(opts Options) *Store {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		sessions: make(map[Key]*History),
		locks:    newLockRegistry(),
		limit:    opts.HistoryLimit,
		now:      opts.Clock,
	}
}

// Session is the exclusive view of one conversation handed to WithSession.
// It must not be retained after the callback returns.
type Session struct {
	key     Key
	history *History
	isNew   bool
	evicted bool
	now     func() time.Time
}

func (s *Session) Key() Key { return s.key }

// Append records a turn stamped with the store clock and returns it.
func (s *Session) Append(role Role, text string) Turn {
	t := Turn{Role: role, Text: text, CreatedAt: s.now()}
	s.history.append(t)
	return s.history.turns[len(s.history.turns)-1]
}

func (s *Session) Turns() []Turn { return s.history.Turns() }

func (s *Session) Len() int { return s.history.Len() }

func (s *Session) LastActivity() time.Time { return s.history.LastActivity() }

// IsNew reports whether the conversation did not exist before this call.
func (s *Session) IsNew() bool { return s.isNew }

// Evict drops the conversation once the callback returns.
func (s *Session) Evict() { s.evicted = true }

func (s *Session) Evicted() bool { return s.evicted }

// WithSession runs fn with exclusive access to the history for key. The lock
// is released and changes are committed even when fn fails or panics.
// Histories left empty or evicted are removed from the store.
func (s *Store) WithSession(ctx context.Context, key Key, fn func(*Session) error) error {
	release, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	current, ok := s.sessions[key]
	s.mu.RUnlock()

	work := newHistory(s.limit)
	if ok {
		work = current.clone()
	}
	sess := &Session{key: key, history: work, isNew: !ok, now: s.now}
	defer s.commit(sess, ok)

	return fn(sess)
}

func (s *Store) commit(sess *Session, existed bool) {
	s.mu.Lock()
	switch {
	case sess.evicted:
		delete(s.sessions, sess.key)
		if existed || sess.history.Len() > 0 {
			observability.RecordSessionEviction(EvictReasonDropped)
			log.Debug().
				Str("session_key", sess.key.String()).
				Msg("Session dropped")
		}
	case sess.history.Len() == 0:
		delete(s.sessions, sess.key)
	default:
		s.sessions[sess.key] = sess.history
	}
	count := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(count)
}

// EvictIfExpired removes key when now - lastActivity > timeout. A session idle
// for exactly timeout is kept.
func (s *Store) EvictIfExpired(ctx context.Context, key Key, now time.Time, timeout time.Duration) (bool, error) {
	release, err := s.lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer release()

	s.mu.Lock()
	h, ok := s.sessions[key]
	if !ok || now.Sub(h.LastActivity()) <= timeout {
		s.mu.Unlock()
		return false, nil
	}
	idle := now.Sub(h.LastActivity())
	delete(s.sessions, key)
	count := len(s.sessions)
	s.mu.Unlock()

	observability.RecordSessionEviction(EvictReasonIdle)
	observability.SetActiveSessions(count)
	log.Debug().
		Str("session_key", key.String()).
		Dur("idle", idle).
		Msg("Session expired")

	return true, nil
}

// Evict removes key if present and reports whether it existed.
func (s *Store) Evict(ctx context.Context, key Key) (bool, error) {
	release, err := s.lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer release()

	s.mu.Lock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	count := len(s.sessions)
	s.mu.Unlock()

	if ok {
		observability.RecordSessionEviction(EvictReasonEnded)
		observability.SetActiveSessions(count)
		log.Debug().
			Str("session_key", key.String()).
			Msg("Session ended")
	}
	return ok, nil
}

func (s *Store) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[key]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Keys returns the keys currently held, ordered by their string form.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// Snapshot returns a copy of the turns stored for key.
func (s *Store) Snapshot(key Key) ([]Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	return h.Turns(), true
}

// LastActivity returns the newest turn time for key.
func (s *Store) LastActivity(key Key) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[key]
	if !ok {
		return time.Time{}, false
	}
	return h.LastActivity(), true
}

func (s *Store) lock(ctx context.Context, key Key) (func(), error) {
	started := time.Now()
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", key, err)
	}
	observability.RecordSessionLockWait(time.Since(started))
	return release, nil
}

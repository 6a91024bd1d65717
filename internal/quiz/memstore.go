package quiz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docqa/internal/domain"
)

type entry struct {
	mu      sync.Mutex
	session Session
	gone    bool
}

// MemoryStore keeps sessions in process. Each session has its own lock;
// the map lock is held only to look up, insert or remove entries.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewMemoryStore returns a store whose sessions expire ttl after creation.
// A zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration, log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	m.mu.Lock()
	m.sessions[s.ID] = &entry{session: s}
	m.mu.Unlock()
	return nil
}

// with runs fn holding the session's lock. fn returns true to delete the
// session afterwards.
func (m *MemoryStore) with(sessionID string, fn func(s *Session) (bool, error)) error {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return domain.ErrUnknownSession
	}
	if m.expired(&e.session) {
		m.remove(sessionID, e)
		return domain.ErrUnknownSession
	}
	drop, err := fn(&e.session)
	if drop {
		m.remove(sessionID, e)
	}
	return err
}

// remove must be called with e.mu held.
func (m *MemoryStore) remove(sessionID string, e *entry) {
	e.gone = true
	m.mu.Lock()
	if m.sessions[sessionID] == e {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
}

func (m *MemoryStore) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.CreatedAt) > m.ttl
}

func (m *MemoryStore) Evaluate(_ context.Context, sessionID, questionID, answer string) (Result, error) {
	var res Result
	err := m.with(sessionID, func(s *Session) (bool, error) {
		var err error
		res, err = s.Grade(questionID, answer)
		return err == nil && len(s.Questions) == 0, err
	})
	return res, err
}

func (m *MemoryStore) Progress(_ context.Context, sessionID string) (Progress, error) {
	var p Progress
	err := m.with(sessionID, func(s *Session) (bool, error) {
		p = s.Progress()
		return false, nil
	})
	return p, err
}

func (m *MemoryStore) Hint(_ context.Context, sessionID, questionID string) (string, error) {
	var hint string
	err := m.with(sessionID, func(s *Session) (bool, error) {
		var err error
		hint, err = s.Hint(questionID)
		return false, err
	})
	return hint, err
}

func (m *MemoryStore) Questions(_ context.Context, sessionID string) ([]PublicQuestion, error) {
	var out []PublicQuestion
	err := m.with(sessionID, func(s *Session) (bool, error) {
		out = make([]PublicQuestion, len(s.Questions))
		for i, q := range s.Questions {
			out[i] = q.Public(s.Format)
		}
		return false, nil
	})
	return out, err
}

func (m *MemoryStore) End(_ context.Context, sessionID string) (Progress, error) {
	var p Progress
	err := m.with(sessionID, func(s *Session) (bool, error) {
		p = s.Progress()
		return true, nil
	})
	return p, err
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if err := m.with(id, func(*Session) (bool, error) { return false, nil }); err != nil {
			n++
		}
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.log.Info("expired quiz sessions", "count", n)
			}
		}
	}
}

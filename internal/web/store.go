package web

// store.go keeps the live import sessions in memory.
//
// Each session owns a Workflow and an event Bus. Workflows are not safe
// for concurrent use, so every call goes through the entry mutex. Idle
// sessions are evicted by a background sweeper that follows the same
// ticker loop as the other maintenance jobs.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

var (
	// ErrSessionNotFound is returned for unknown or evicted session ids.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrTooManySessions is returned when the store is full.
	ErrTooManySessions = errors.New("too many import sessions")
)

// eventBuffer is the per-subscriber channel size of a session bus.
const eventBuffer = 16

// StoreConfig holds the settings of a SessionStore.
type StoreConfig struct {
	MaxSessions int           // 0 means unlimited
	IdleTTL     time.Duration // 0 disables eviction
	Sink        importer.Sink
	MaxFileSize int64
	Logger      *slog.Logger
}

// SessionStore maps session ids to their workflows.
type SessionStore struct {
	cfg StoreConfig
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	mu      sync.Mutex
	wf      *importer.Workflow
	bus     *importer.Bus
	touched time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(cfg StoreConfig) *SessionStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionStore{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Create starts a new session and returns its initial state.
func (s *SessionStore) Create(entity importer.EntityType, opts importer.Options) (importer.Session, error) {
	id := uuid.NewString()
	bus := importer.NewBus(eventBuffer)

	wf, err := importer.NewWorkflow(id, entity, opts, importer.WorkflowConfig{
		Sink:        s.cfg.Sink,
		Listener:    bus,
		MaxFileSize: s.cfg.MaxFileSize,
		Logger:      s.cfg.Logger,
	})
	if err != nil {
		return importer.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return importer.Session{}, ErrTooManySessions
	}
	s.sessions[id] = &sessionEntry{wf: wf, bus: bus, touched: s.now()}
	return wf.Session(), nil
}

// Get returns the current state of a session.
func (s *SessionStore) Get(id string) (importer.Session, error) {
	return s.Do(id, nil)
}

// Do runs fn against the session's workflow while holding its lock and
// returns the state fn left behind. A nil fn only reads the state.
func (s *SessionStore) Do(id string, fn func(*importer.Workflow) error) (importer.Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return importer.Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.touched = s.now()
	if fn == nil {
		return e.wf.Session(), nil
	}
	err = fn(e.wf)
	return e.wf.Session(), err
}

// Subscribe returns the event stream of a session and a function that
// detaches it.
func (s *SessionStore) Subscribe(id string) (<-chan importer.Event, func(), error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}
	ch := e.bus.Subscribe()
	return ch, func() { e.bus.Unsubscribe(ch) }, nil
}

// Delete removes a session and closes its event stream.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.bus.Close()
	return nil
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed. Sessions busy with a request are never idle.
func (s *SessionStore) Sweep() int {
	if s.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var evicted []*sessionEntry
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.touched.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted = append(evicted, e)
		}
	}
	s.mu.Unlock()

	for _, e := range evicted {
		e.bus.Close()
	}
	return len(evicted)
}

// StartSweeper evicts idle sessions every interval until ctx is cancelled.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.cfg.IdleTTL <= 0 {
		return
	}

	s.cfg.Logger.Info("session sweeper started",
		"interval", interval,
		"idle_ttl", s.cfg.IdleTTL,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if n := s.Sweep(); n > 0 {
				s.cfg.Logger.Info("evicted idle sessions",
					"sessions_evicted", n,
					"sessions_live", s.Len(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}

// Close drops every session and closes their event streams.
func (s *SessionStore) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, e := range sessions {
		e.bus.Close()
	}
}

func (s *SessionStore) entry(id string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

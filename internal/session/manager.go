package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sessionedit/internal/annotation"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/metrics"
	"github.com/sessionedit/internal/render"
	"github.com/sessionedit/internal/storage"
)

// Notifier delivers session events to connected browsers.
type Notifier interface {
	Notify(sessionID, event string, payload any)
}

// ManagerConfig wires the dependencies shared by all sessions.
type ManagerConfig struct {
	// NewBackend returns a chunk server connection with its own cookie session.
	NewBackend func() (Backend, error)
	Store      storage.SnapshotStore
	TTL        time.Duration
	Journal    Journal
	Metrics    *metrics.Collector
	Notifier   Notifier
	Renderer   *render.Renderer
	// EngineOptions are applied to every new engine (tests pass a seeded color source).
	EngineOptions []annotation.Option
}

// Manager owns the live sessions. A session missing from memory is rebuilt from its
// snapshot; one that was never created is ErrSessionNotFound.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 72 * time.Hour
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New()
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

func (m *Manager) newSession(id string) (*Session, error) {
	b, err := m.cfg.NewBackend()
	if err != nil {
		return nil, err
	}
	s := New(id, b, m.cfg.Renderer, m.cfg.EngineOptions...)
	s.journal = m.cfg.Journal
	s.metrics = m.cfg.Metrics
	s.hooks.persist = m.persist
	if m.cfg.Notifier != nil {
		s.hooks.notify = m.cfg.Notifier.Notify
	}
	return s, nil
}

// Create starts a new session with a fresh id.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s, err := m.newSession(uuid.NewString())
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.cfg.Metrics.SetSessions(n)
	m.persist(ctx, s)
	logger.Infof("session %s: created", logger.MaskID(s.ID))
	return s, nil
}

// Get returns the live session or restores it from the snapshot store.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	if m.cfg.Store == nil {
		return nil, ErrSessionNotFound
	}
	data, err := m.cfg.Store.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrSessionNotFound
	}
	s, err = m.newSession(id)
	if err != nil {
		return nil, err
	}
	if err := s.restore(data); err != nil {
		logger.Errorf("session %s: snapshot unusable, starting empty: %v", logger.MaskID(id), err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		s = existing
	} else {
		m.sessions[id] = s
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.cfg.Metrics.SetSessions(n)
	logger.Infof("session %s: restored from snapshot", logger.MaskID(id))
	return s, nil
}

// Delete forgets a session and its snapshot.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	m.cfg.Metrics.SetSessions(n)
	if m.cfg.Store == nil {
		return nil
	}
	return m.cfg.Store.DeleteSnapshot(ctx, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops live sessions idle for longer than maxIdle. Their snapshots stay in the store.
func (m *Manager) Evict(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		if s.lastTouched().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.cfg.Metrics.SetSessions(n)
	return evicted
}

// Run evicts idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Evict(maxIdle); n > 0 {
				logger.Infof("sessions: evicted %d idle", n)
			}
		}
	}
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.cfg.Store == nil {
		return
	}
	data, err := s.marshal()
	if err != nil {
		logger.Errorf("session %s: snapshot: %v", logger.MaskID(s.ID), err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.cfg.Store.SaveSnapshot(ctx, s.ID, data, m.cfg.TTL); err != nil {
		logger.Errorf("session %s: save snapshot: %v", logger.MaskID(s.ID), err)
	}
}

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/metrics"
)

// ErrSessionLimit is returned when an owner already has the maximum number
// of live sessions.
var ErrSessionLimit = errors.New("session limit reached")

// Manager is the registry of live analysis sessions. Sessions are owned by
// the user who created them (or anonymous), addressed by unguessable IDs,
// and reaped after a period of inactivity.
type Manager struct {
	gateways   GatewayProvider
	analyzer   Analyzer
	historian  HistoryAppender
	categories []string
	ttl        time.Duration
	maxPerUser int
	logger     *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewManager(gateways GatewayProvider, eng Analyzer, historian HistoryAppender, categories []string, ttl time.Duration, maxPerUser int, log *logger.Logger) *Manager {
	return &Manager{
		gateways:   gateways,
		analyzer:   eng,
		historian:  historian,
		categories: categories,
		ttl:        ttl,
		maxPerUser: maxPerUser,
		logger:     log.WithComponent("session-manager"),
		sessions:   make(map[string]*Controller),
	}
}

// Create opens a fresh session for ownerID. Anonymous callers pass an empty
// owner; their sessions run normally but nothing is persisted.
func (m *Manager) Create(ownerID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxPerUser > 0 {
		var owned int
		for _, ctrl := range m.sessions {
			if ctrl.OwnerID() == ownerID {
				owned++
			}
		}
		if owned >= m.maxPerUser {
			return nil, ErrSessionLimit
		}
	}

	id := uuid.New().String()
	ctrl := NewController(id, ownerID, m.gateways.GatewayFor(id), m.analyzer, m.historian, m.categories, m.logger)
	m.sessions[id] = ctrl
	metrics.SessionOpened()

	m.logger.Info("session created",
		slog.String("session_id", id),
		slog.Bool("anonymous", ownerID == ""))
	return ctrl, nil
}

// Get returns the session only to its owner. A wrong owner sees the same
// absence as a missing session.
func (m *Manager) Get(id, ownerID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctrl, ok := m.sessions[id]
	if !ok || ctrl.OwnerID() != ownerID {
		return nil, false
	}
	return ctrl, true
}

// Close tears down a session and releases its device channel.
func (m *Manager) Close(id, ownerID string) bool {
	m.mu.Lock()
	ctrl, ok := m.sessions[id]
	if !ok || ctrl.OwnerID() != ownerID {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.teardown(ctrl)
	return true
}

// ReapIdle closes every session idle for longer than the TTL. Wired to the
// cron scheduler at startup.
func (m *Manager) ReapIdle() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*Controller
	for id, ctrl := range m.sessions {
		if ctrl.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			stale = append(stale, ctrl)
		}
	}
	m.mu.Unlock()

	for _, ctrl := range stale {
		m.teardown(ctrl)
	}

	if len(stale) > 0 {
		m.logger.Info("reaped idle sessions", slog.Int("count", len(stale)))
	}
}

// CloseAll tears down every live session, for server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	remaining := make([]*Controller, 0, len(m.sessions))
	for id, ctrl := range m.sessions {
		delete(m.sessions, id)
		remaining = append(remaining, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range remaining {
		m.teardown(ctrl)
	}
}

func (m *Manager) teardown(ctrl *Controller) {
	ctrl.Close()
	m.gateways.Release(ctrl.ID())
	metrics.SessionClosed()
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

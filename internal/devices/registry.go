package devices

import (
	"sync"
	"time"

	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/session"
)

// Registry owns one bridge per live session and implements
// session.GatewayProvider.
type Registry struct {
	replyTimeout time.Duration
	speechIdle   time.Duration
	logger       *logger.Logger

	mu      sync.Mutex
	bridges map[string]*Bridge
}

func NewRegistry(replyTimeout, speechIdle time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		replyTimeout: replyTimeout,
		speechIdle:   speechIdle,
		logger:       log,
		bridges:      make(map[string]*Bridge),
	}
}

// GatewayFor returns the session's bridge, creating it on first use. The
// bridge exists before any device connects; commands issued meanwhile fail
// with a clear "no device connected" error.
func (r *Registry) GatewayFor(sessionID string) session.DeviceGateway {
	return r.bridgeFor(sessionID)
}

func (r *Registry) bridgeFor(sessionID string) *Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bridges[sessionID]; ok {
		return b
	}
	b := NewBridge(sessionID, r.replyTimeout, r.speechIdle, r.logger)
	r.bridges[sessionID] = b
	return b
}

// Release drops the bridge and its connection when the session goes away.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	b, ok := r.bridges[sessionID]
	delete(r.bridges, sessionID)
	r.mu.Unlock()

	if ok {
		b.Detach()
	}
}

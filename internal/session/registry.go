package session

import (
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/events"
)

// DefaultGracePeriod matches spec.md's default gracePeriodSeconds.
const DefaultGracePeriod = 60 * time.Second

// Registry maps sessionId → Controller, enforcing maxSessions and mediating
// the reconnect grace period. Lookup never creates a session; only Attach
// does. The sessions map is mutated only by Registry's own methods (the
// control thread); Get takes a read lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller

	maxSessions int
	gracePeriod time.Duration
	bus         *events.Bus
	newEmulator func() emulator.Facade
}

// New creates an empty Registry. newEmulator constructs one emulator
// facade per attached session.
func New(maxSessions int, gracePeriod time.Duration, bus *events.Bus, newEmulator func() emulator.Facade) *Registry {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Registry{
		sessions:    make(map[string]*Controller),
		maxSessions: maxSessions,
		gracePeriod: gracePeriod,
		bus:         bus,
		newEmulator: newEmulator,
	}
}

// Get looks up an existing session by ID. Never creates one.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[sessionID]
	return c, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Summary is a snapshot of one session's state, for the /api/sessions
// listing endpoint.
type Summary struct {
	SessionID string `json:"sessionId"`
	Attached  bool   `json:"attached"`
	RunningAST string `json:"runningAst,omitempty"`
}

// List returns a snapshot summary of every live session.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	ids := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		ids = append(ids, c)
	}
	r.mu.RUnlock()

	out := make([]Summary, 0, len(ids))
	for _, c := range ids {
		s := Summary{SessionID: c.SessionID(), Attached: c.IsAttached()}
		if a := c.RunningAST(); a != nil {
			s.RunningAST = a.Name()
		}
		out = append(out, s)
	}
	return out
}

// Attach binds a transport to sessionID, creating the session (and its
// emulator) if it does not already exist. Returns ErrSessionLimitReached if
// the cap is already at maxSessions for a brand-new session.
func (r *Registry) Attach(sessionID string, t Transport) (*Controller, error) {
	r.mu.Lock()
	c, exists := r.sessions[sessionID]
	if !exists {
		if len(r.sessions) >= r.maxSessions {
			r.mu.Unlock()
			return nil, ErrSessionLimitReached
		}
		var emu emulator.Facade
		if r.newEmulator != nil {
			emu = r.newEmulator()
		}
		c = newController(sessionID, emu, r.bus)
		r.sessions[sessionID] = c
	}
	r.mu.Unlock()

	c.Attach(t)
	if r.bus != nil {
		r.bus.Publish(events.NewTypedEventWithSession(events.SourceSession, events.SessionCreatedPayload{SessionID: sessionID}, sessionID))
	}
	return c, nil
}

// Detach is called when a session's transport disconnects. It schedules
// destruction after the grace period unless an AST is running, in which
// case destruction is rescheduled indefinitely until the AST completes —
// see SPEC_FULL.md §11's open-question decision: the AST is authoritative,
// no hard session TTL is enforced.
func (r *Registry) Detach(sessionID string) {
	r.mu.RLock()
	c, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	c.Detach()
	if r.bus != nil {
		r.bus.Publish(events.NewTypedEventWithSession(events.SourceSession, events.SessionReconnectGracePayload{
			SessionID:   sessionID,
			GracePeriod: r.gracePeriod,
		}, sessionID))
	}
	r.scheduleDestruction(sessionID)
}

func (r *Registry) scheduleDestruction(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	c.mu.Lock()
	if c.destroyTime != nil {
		c.destroyTime.Stop()
	}
	c.destroyTime = time.AfterFunc(r.gracePeriod, func() { r.onDestructionTimer(sessionID) })
	c.mu.Unlock()
}

func (r *Registry) onDestructionTimer(sessionID string) {
	r.mu.RLock()
	c, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if c.IsAttached() {
		return // reconnected, nothing to do
	}
	if c.RunningAST() != nil {
		r.scheduleDestruction(sessionID) // AST is authoritative, do not kill it
		return
	}
	r.Destroy(sessionID, "grace period expired")
}

// Destroy tears down a session immediately, bypassing the grace period.
// Used for session.destroy commands and process shutdown.
func (r *Registry) Destroy(sessionID, reason string) {
	r.mu.Lock()
	c, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	_ = c.Close()
	if r.bus != nil {
		r.bus.Publish(events.NewTypedEventWithSession(events.SourceSession, events.SessionClosedPayload{
			SessionID: sessionID,
			Reason:    reason,
		}, sessionID))
	}
}

// Shutdown cancels all pending destruction timers and destroys every live
// session in parallel.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Destroy(id, "process shutdown")
		}(id)
	}
	wg.Wait()
}

// Package session owns live mainframe seats: the registry that enforces the
// session cap and mediates grace-period reconnect, and the per-session
// controller that dispatches transport frames to the emulator or to the
// Runner.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/events"
)

// Sentinel control-plane errors, surfaced as typed `error` outbound events
// rather than bare strings so a caller can errors.Is them.
var (
	ErrSessionLimitReached = errors.New("SESSION_LIMIT_REACHED")
	ErrASTBusy             = errors.New("AST_BUSY")
	ErrValidation          = errors.New("VALIDATION_ERROR")
)

// Transport is the minimal surface a SessionController needs from whatever
// carries frames to the client — a WebSocket connection in production, a
// fake in tests.
type Transport interface {
	SendKeystrokes(data []byte) error
	Resize(rows, cols int) error
	Close() error
}

// Controller owns one emulator connection and the session's lifecycle
// state: attached transport (nullable), currently running AST (nullable),
// and pending destruction timer (nullable). At most one AST runs at a time.
type Controller struct {
	mu sync.Mutex

	sessionID string
	emu       emulator.Facade
	transport Transport

	runningAST  ast.AST
	runCancel   func()
	destroyTime *time.Timer

	bus *events.Bus
}

// newController constructs a Controller owning emu, with no transport
// attached yet.
func newController(sessionID string, emu emulator.Facade, bus *events.Bus) *Controller {
	return &Controller{sessionID: sessionID, emu: emu, bus: bus}
}

// SessionID returns the controller's session identifier.
func (c *Controller) SessionID() string { return c.sessionID }

// Attach binds a transport to the session, cancelling any pending
// destruction timer (a reconnect within the grace period).
func (c *Controller) Attach(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
	if c.destroyTime != nil {
		c.destroyTime.Stop()
		c.destroyTime = nil
	}
}

// Detach clears the attached transport, returning whether an AST is
// currently running. Registry.Detach does not use the result; its
// destruction timer re-checks RunningAST when it fires.
func (c *Controller) Detach() (astRunning bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = nil
	return c.runningAST != nil
}

// IsAttached reports whether a transport is currently bound.
func (c *Controller) IsAttached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// TryStartAST claims the "one AST at a time" slot for this session. Returns
// ErrASTBusy if one is already running.
func (c *Controller) TryStartAST(a ast.AST, cancel func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runningAST != nil {
		return ErrASTBusy
	}
	c.runningAST = a
	c.runCancel = cancel
	return nil
}

// FinishAST releases the "one AST at a time" slot.
func (c *Controller) FinishAST() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runningAST = nil
	c.runCancel = nil
}

// RunningAST returns the currently running AST, or nil.
func (c *Controller) RunningAST() ast.AST {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningAST
}

// Cancel forwards a cancel request to the running AST, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	a := c.runningAST
	c.mu.Unlock()
	if a != nil {
		a.Runtime().Cancel()
	}
}

// Pause forwards a pause request to the running AST, if any.
func (c *Controller) Pause() {
	c.mu.Lock()
	a := c.runningAST
	c.mu.Unlock()
	if a != nil {
		a.Runtime().Pause()
	}
}

// Resume forwards a resume request to the running AST, if any.
func (c *Controller) Resume() {
	c.mu.Lock()
	a := c.runningAST
	c.mu.Unlock()
	if a != nil {
		a.Runtime().Resume()
	}
}

// Emulator returns the session's owned emulator facade, for sequential runs.
func (c *Controller) Emulator() emulator.Facade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emu
}

// Close tears down the owned emulator connection.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyTime != nil {
		c.destroyTime.Stop()
	}
	if c.emu != nil {
		return c.emu.Drop()
	}
	return nil
}

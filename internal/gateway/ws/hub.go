// Package ws implements the `/session/<sessionId>` WebSocket transport: one
// connection per terminal seat, bridging inbound ast.run/cancel/pause/resume/
// session.destroy commands to the session registry and Runner, and fanning
// out the EventBus back to the attached client.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/execution"
	"github.com/dohr-michael/iast-gateway/internal/session"
)

// sessionIDPattern matches spec.md's `/session/<sessionId>` path constraint.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Client represents one connected WebSocket client, bound to exactly one
// session for its lifetime.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	hub        *Hub
	sessionID  string
	controller *session.Controller
}

func (c *Client) SendKeystrokes(data []byte) error { return nil } // terminal echo not modeled here
func (c *Client) Resize(rows, cols int) error      { return nil }
func (c *Client) Close() error                     { return c.conn.Close(websocket.StatusNormalClosure, "") }

// Hub manages WebSocket clients, the session registry they attach to, and
// the Runner that drives AST executions on their behalf.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	registry    *session.Registry
	runner      *execution.Runner
	unsubscribe func()
}

// NewHub creates a Hub wired to registry and runner, and subscribes to the
// bus to fan events out to the client attached to each event's session.
func NewHub(bus *events.Bus, registry *session.Registry, runner *execution.Runner) *Hub {
	h := &Hub{
		clients:  make(map[*Client]struct{}),
		bus:      bus,
		registry: registry,
		runner:   runner,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		if e.SessionID == "" {
			return
		}
		frame, err := NewEventFrame(string(e.Type), e.SessionID, e.Payload)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.sendToSession(e.SessionID, data)
	})

	return h
}

func (h *Hub) sendToSession(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.sessionID == sessionID {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if c.sessionID != "" {
		h.registry.Detach(c.sessionID)
	}
}

// ServeWS handles the `/session/{sessionId}` upgrade: validates the path
// segment, attaches (creating if needed, subject to maxSessions), and runs
// the connection's read/write pumps until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !sessionIDPattern.MatchString(sessionID) {
		conn, err := websocket.Accept(w, r, nil)
		if err == nil {
			conn.Close(websocket.StatusCode(4000), "Invalid path")
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{conn: conn, send: make(chan []byte, 256), hub: h, sessionID: sessionID}

	controller, err := h.registry.Attach(sessionID, client)
	if err != nil {
		client.sendError(r.Context(), "", err.Error())
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	client.controller = controller

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.hub.unregister(c)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type == FrameTypeRequest {
			c.handleRequest(ctx, frame)
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch Method(frame.Method) {
	case MethodASTRun:
		c.handleASTRun(ctx, frame)
	case MethodASTCancel:
		c.controller.Cancel()
		c.sendOK(ctx, frame.ID, map[string]string{"status": "cancelling"})
	case MethodASTPause:
		c.controller.Pause()
		c.sendOK(ctx, frame.ID, map[string]string{"status": "pausing"})
	case MethodASTResume:
		c.controller.Resume()
		c.sendOK(ctx, frame.ID, map[string]string{"status": "resuming"})
	case MethodSessionDestroy:
		c.hub.registry.Destroy(c.sessionID, "client requested destroy")
		c.sendOK(ctx, frame.ID, map[string]string{"status": "destroyed"})
	case MethodKeystrokes, MethodResize:
		c.sendOK(ctx, frame.ID, map[string]string{"status": "ok"})
	default:
		c.sendError(ctx, frame.ID, "unknown method: "+frame.Method)
	}
}

// astRunParams mirrors SPEC_FULL.md §6's ast.run payload shape.
type astRunParams struct {
	ASTName string `json:"astName"`
	Params  struct {
		Username      string `json:"username"`
		Password      string `json:"password"`
		UserID        string `json:"userId"`
		Parallel      bool   `json:"parallel"`
		MaxSessions   int    `json:"maxSessions"`
		HostAddress   string `json:"hostAddress"`
		HostPort      int    `json:"hostPort"`
		Secure        bool   `json:"secure"`
		PolicyNumbers []any  `json:"policyNumbers"`
		Items         []any  `json:"items"`
	} `json:"params"`
}

func (c *Client) handleASTRun(ctx context.Context, frame Frame) {
	var p astRunParams
	if err := json.Unmarshal(frame.Params, &p); err != nil {
		c.sendError(ctx, frame.ID, "invalid params")
		return
	}

	rawParams := map[string]any{"policyNumbers": p.Params.PolicyNumbers, "items": p.Params.Items}

	go c.runAST(ctx, frame.ID, p.ASTName, rawParams, p.Params)
}

func (c *Client) runAST(ctx context.Context, frameID, astName string, rawParams map[string]any, params struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	UserID        string `json:"userId"`
	Parallel      bool   `json:"parallel"`
	MaxSessions   int    `json:"maxSessions"`
	HostAddress   string `json:"hostAddress"`
	HostPort      int    `json:"hostPort"`
	Secure        bool   `json:"secure"`
	PolicyNumbers []any  `json:"policyNumbers"`
	Items         []any  `json:"items"`
}) {
	res, err := c.hub.runner.Run(ctx, execution.RunParams{
		ASTName:     astName,
		Username:    params.Username,
		Password:    params.Password,
		UserID:      params.UserID,
		SessionID:   c.sessionID,
		Params:      rawParams,
		Emulator:    c.controller.Emulator(),
		Parallel:    params.Parallel,
		MaxSessions: params.MaxSessions,
		Controller:  c.controller,
	})
	if err != nil {
		c.sendError(ctx, frameID, err.Error())
		return
	}
	c.sendOK(ctx, frameID, res)
}

func (c *Client) sendOK(ctx context.Context, id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(ctx context.Context, id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}

package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/persistence"
)

// ErrUnknownAST is returned when RunParams.ASTName has no registered factory.
var ErrUnknownAST = errors.New("unknown ast")

// ErrMissingCredentials is returned when Username or Password is empty.
var ErrMissingCredentials = errors.New("missing username or password")

// ErrNoEmulator is returned when a sequential run is requested with no
// attached emulator session.
var ErrNoEmulator = errors.New("sequential run requires an attached emulator session")

// Controller is the subset of session.Controller's AST-slot API the Runner
// binds the resolved ast.AST to for the run's full lifetime, so AST_BUSY and
// ast.cancel/pause/resume all operate on the instance actually executing
// rather than on nothing. An interface here (rather than importing
// internal/session) keeps a transport-triggered run and a controller-less
// scheduled run going through the same binding path.
type Controller interface {
	TryStartAST(a ast.AST, cancel func()) error
	FinishAST()
}

// Runner resolves an AST by name, prepares its items, and dispatches the run
// to the sequential or parallel executor.
type Runner struct {
	Registry *ast.Registry
	Store    persistence.Store
	Bus      *events.Bus

	// NewEmulator constructs one emulator session, used by the parallel
	// executor to open a worker's session. Sequential runs instead consume
	// RunParams.Emulator, an already-open session attached to the caller's
	// interactive terminal.
	NewEmulator func() emulator.Facade
}

// RunParams is the caller-supplied configuration for one AST run.
type RunParams struct {
	ASTName     string
	Username    string
	Password    string
	UserID      string
	SessionID   string
	ExecutionID string
	Params      map[string]any

	// Emulator is the session already attached to the caller, used for
	// sequential runs. Required unless Parallel is true.
	Emulator emulator.Facade

	Parallel       bool
	MaxSessions    int
	EmulatorConfig emulator.Config

	// Controller, if non-nil, claims the session's one-AST-at-a-time slot for
	// the run's duration. nil for controller-less runs (the scheduler
	// triggers runs with no attached interactive session).
	Controller Controller
}

// Run resolves and executes one AST run, returning the final ExecutionResult.
// A validation failure (unknown AST, missing credentials, no emulator for a
// sequential run) produces a failed ExecutionResult with no side effects
// against the emulator, rather than an error-only return — callers persist
// and report the ExecutionResult regardless of outcome.
func (r *Runner) Run(ctx context.Context, p RunParams) (*ast.ExecutionResult, error) {
	executionID := p.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	a := r.Registry.New(p.ASTName)
	if a == nil {
		return validationFailure(p.SessionID, executionID, p.ASTName, "unknown AST: "+p.ASTName), ErrUnknownAST
	}

	if p.Controller != nil {
		runCtx, cancel := context.WithCancel(ctx)
		if err := p.Controller.TryStartAST(a, cancel); err != nil {
			cancel()
			return validationFailure(p.SessionID, executionID, a.Name(), err.Error()), err
		}
		defer p.Controller.FinishAST()
		defer cancel()
		ctx = runCtx
	}

	if p.Username == "" || p.Password == "" {
		return validationFailure(p.SessionID, executionID, a.Name(), "missing username or password"), ErrMissingCredentials
	}

	parallel := p.Parallel
	if parallel && !a.SupportsParallel() {
		slog.Warn("ast does not support parallel execution, falling back to sequential", "ast", a.Name(), "execution_id", executionID)
		parallel = false
	}
	if !parallel && p.Emulator == nil {
		return validationFailure(p.SessionID, executionID, a.Name(), ErrNoEmulator.Error()), ErrNoEmulator
	}

	a.Runtime().Init(executionID, p.SessionID, r.Bus)

	items, err := a.PrepareItems(ctx, p.Params)
	if err != nil {
		return validationFailure(p.SessionID, executionID, a.Name(), "prepare items: "+err.Error()), err
	}

	ec := Context{
		AST:            a,
		Username:       p.Username,
		Password:       p.Password,
		UserID:         p.UserID,
		SessionID:      p.SessionID,
		ExecutionID:    executionID,
		Items:          items,
		Store:          r.Store,
		Bus:            r.Bus,
		EmulatorConfig: p.EmulatorConfig,
		NewEmulator:    r.NewEmulator,
		MaxSessions:    p.MaxSessions,
	}

	if parallel {
		exec := &ParallelExecutor{}
		return exec.Run(ctx, ec)
	}

	exec := &SequentialExecutor{}
	return exec.Run(ctx, ec, p.Emulator)
}

// validationFailure builds a terminal, already-failed ExecutionResult for a
// run that never reached the point of touching an emulator session.
func validationFailure(sessionID, executionID, astName, errMsg string) *ast.ExecutionResult {
	now := time.Now()
	return &ast.ExecutionResult{
		SessionID:   sessionID,
		ExecutionID: executionID,
		ASTName:     astName,
		Status:      ast.ExecFailed,
		StartedAt:   now,
		CompletedAt: &now,
		Error:       errMsg,
	}
}

package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/execution"
	"github.com/dohr-michael/iast-gateway/internal/secrets"
)

func newTestBus() *events.Bus {
	return events.NewBus(64)
}

func newTestRunner(t *testing.T) *execution.Runner {
	t.Helper()
	registry := ast.NewRegistry()
	if err := registry.Register(ast.NewPolicyLogAST); err != nil {
		t.Fatalf("register ast: %v", err)
	}
	return &execution.Runner{
		Registry:    registry,
		Bus:         newTestBus(),
		NewEmulator: func() emulator.Facade { return stub.New(stub.DefaultScript()) },
	}
}

func newTestCredentials(t *testing.T) *secrets.CredentialStore {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	path := filepath.Join(t.TempDir(), "credentials.jsonc")
	store := secrets.NewCredentialStore(path, identity, identity.Recipient())
	if err := store.Set("MVS_BATCH", "s3cr3t"); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return store
}

func TestScheduler_AddJobValidatesTrigger(t *testing.T) {
	s := New(Config{Runner: newTestRunner(t), Bus: newTestBus()})

	err := s.AddJob(&ScheduledJob{ASTName: "policy_log"})
	if err == nil {
		t.Fatal("expected error for job with no cron or interval")
	}
}

func TestScheduler_AddJobRejectsMissingASTName(t *testing.T) {
	s := New(Config{Runner: newTestRunner(t), Bus: newTestBus()})

	err := s.AddJob(&ScheduledJob{CronSpec: "*/5 * * * *"})
	if err == nil {
		t.Fatal("expected error for job with no ast name")
	}
}

func TestScheduler_AddAndListJob(t *testing.T) {
	s := New(Config{Runner: newTestRunner(t), Bus: newTestBus()})

	job := &ScheduledJob{ASTName: "policy_log", CronSpec: "*/5 * * * *", CredentialName: "MVS_BATCH", SessionID: "sched-1"}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected AddJob to assign an ID")
	}

	list := s.ListJobs()
	if len(list) != 1 {
		t.Fatalf("expected 1 job, got %d", len(list))
	}
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := New(Config{Runner: newTestRunner(t), Bus: newTestBus()})

	job := &ScheduledJob{ASTName: "policy_log", IntervalSec: 30, SessionID: "sched-1"}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.RemoveJob(job.ID); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if len(s.ListJobs()) != 0 {
		t.Fatal("expected no jobs after removal")
	}
}

func TestScheduler_RemoveJobNotFound(t *testing.T) {
	s := New(Config{Runner: newTestRunner(t), Bus: newTestBus()})

	if err := s.RemoveJob("sched_nope"); err == nil {
		t.Fatal("expected error removing unknown job")
	}
}

func TestScheduler_TriggersOnInterval(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	runner := newTestRunner(t)
	credentials := newTestCredentials(t)

	s := New(Config{Runner: runner, Bus: bus, Credentials: credentials})

	job := &ScheduledJob{
		ASTName:        "policy_log",
		CredentialName: "MVS_BATCH",
		SessionID:      "sched-1",
		IntervalSec:    5,
		Params:         map[string]any{"policyNumbers": []any{"000000001"}},
	}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.checkIntervals(time.Now())

	time.Sleep(50 * time.Millisecond)

	if job.RunCount != 1 {
		t.Fatalf("expected run count 1, got %d", job.RunCount)
	}
}

func TestScheduler_CooldownPreventsImmediateRetrigger(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	s := New(Config{Runner: newTestRunner(t), Bus: bus, Credentials: newTestCredentials(t)})

	job := &ScheduledJob{
		ASTName:        "policy_log",
		CredentialName: "MVS_BATCH",
		SessionID:      "sched-1",
		CronSpec:       "*/5 * * * *",
		CooldownSec:    3600,
		Params:         map[string]any{"policyNumbers": []any{"000000001"}},
	}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s.checkCron(now)
	firstRunCount := job.RunCount

	s.checkCron(now.Add(5 * time.Minute))
	if job.RunCount != firstRunCount {
		t.Fatalf("expected cooldown to suppress retrigger, run count went from %d to %d", firstRunCount, job.RunCount)
	}
}

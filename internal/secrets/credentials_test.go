package secrets

import (
	"path/filepath"
	"testing"

	"filippo.io/age"
)

func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	path := filepath.Join(t.TempDir(), "credentials.jsonc")
	return NewCredentialStore(path, identity, identity.Recipient())
}

func TestCredentialStore_SetGet(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set("MVS_BATCH", "s3cr3t"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get("MVS_BATCH")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "s3cr3t" {
		t.Fatalf("got %q, want %q", got, "s3cr3t")
	}
}

func TestCredentialStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get("NOPE"); err == nil {
		t.Fatal("expected error for missing credential")
	}
}

func TestCredentialStore_Overwrite(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set("MVS_BATCH", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("MVS_BATCH", "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get("MVS_BATCH")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestCredentialStore_DeleteAndNames(t *testing.T) {
	store := newTestStore(t)

	_ = store.Set("A", "pw-a")
	_ = store.Set("B", "pw-b")

	names, err := store.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}

	if err := store.Delete("A"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.Get("A"); err == nil {
		t.Fatal("expected error after delete")
	}

	names, err = store.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 1 || names[0] != "B" {
		t.Fatalf("unexpected names after delete: %v", names)
	}
}

func TestCredentialStore_PersistsAcrossInstances(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	path := filepath.Join(t.TempDir(), "credentials.jsonc")

	first := NewCredentialStore(path, identity, identity.Recipient())
	if err := first.Set("MVS_BATCH", "s3cr3t"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	second := NewCredentialStore(path, identity, identity.Recipient())
	got, err := second.Get("MVS_BATCH")
	if err != nil {
		t.Fatalf("Get from fresh instance: %v", err)
	}
	if got != "s3cr3t" {
		t.Fatalf("got %q, want %q", got, "s3cr3t")
	}
}

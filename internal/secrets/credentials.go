package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"
)

// CredentialStore is a named mainframe service-account vault: authGroup-
// scoped credentials, age-encrypted at rest, decrypted only at
// authenticate-call time. Interactive ast.run calls that supply a password
// directly in the frame bypass this store entirely — it exists for the
// scheduler's unattended runs, which have no interactive user to prompt.
type CredentialStore struct {
	mu        sync.Mutex
	path      string
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewCredentialStore returns a store for the vault file at path. The file is
// not touched here: a missing file reads as an empty vault, and the first Set
// creates it. identity decrypts; recipient encrypts new entries.
func NewCredentialStore(path string, identity *age.X25519Identity, recipient *age.X25519Recipient) *CredentialStore {
	return &CredentialStore{path: path, identity: identity, recipient: recipient}
}

func (c *CredentialStore) readVault() (map[string]string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}
	vault := map[string]string{}
	if len(data) == 0 {
		return vault, nil
	}
	if err := json.Unmarshal(data, &vault); err != nil {
		return nil, fmt.Errorf("parse vault: %w", err)
	}
	return vault, nil
}

func (c *CredentialStore) writeVault(vault map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	data, err := json.MarshalIndent(vault, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

// Set encrypts password under name, replacing any existing entry.
func (c *CredentialStore) Set(name, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	vault, err := c.readVault()
	if err != nil {
		return err
	}
	blob, err := Encrypt(password, c.recipient)
	if err != nil {
		return fmt.Errorf("encrypt credential %q: %w", name, err)
	}
	vault[name] = blob
	return c.writeVault(vault)
}

// Get decrypts and returns the password stored under name.
func (c *CredentialStore) Get(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vault, err := c.readVault()
	if err != nil {
		return "", err
	}
	blob, ok := vault[name]
	if !ok {
		return "", fmt.Errorf("no credential named %q", name)
	}
	return Decrypt(blob, c.identity)
}

// Delete removes a named credential from the vault, if present.
func (c *CredentialStore) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	vault, err := c.readVault()
	if err != nil {
		return err
	}
	delete(vault, name)
	return c.writeVault(vault)
}

// Names lists the credential names currently stored in the vault.
func (c *CredentialStore) Names() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vault, err := c.readVault()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vault))
	for name := range vault {
		names = append(names, name)
	}
	return names, nil
}

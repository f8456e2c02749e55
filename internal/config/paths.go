package config

import (
	"os"
	"path/filepath"
)

// IastPath returns the root directory for gateway data.
// It uses $IAST_PATH if set, otherwise defaults to ~/.iast.
func IastPath() string {
	if v := os.Getenv("IAST_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".iast")
	}
	return filepath.Join(home, ".iast")
}

// ConfigPath returns the path to the gateway config file.
func ConfigPath() string {
	return filepath.Join(IastPath(), "config.jsonc")
}

// DotenvPath returns the path to the gateway .env file.
func DotenvPath() string {
	return filepath.Join(IastPath(), ".env")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIastPath_Default(t *testing.T) {
	t.Setenv("IAST_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := IastPath()
	want := filepath.Join(home, ".iast")
	if got != want {
		t.Errorf("IastPath() = %q, want %q", got, want)
	}
}

func TestIastPath_EnvOverride(t *testing.T) {
	t.Setenv("IAST_PATH", "/tmp/custom-iast")

	got := IastPath()
	want := "/tmp/custom-iast"
	if got != want {
		t.Errorf("IastPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("IAST_PATH", "/tmp/test-iast")

	got := ConfigPath()
	want := "/tmp/test-iast/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("IAST_PATH", "/tmp/test-iast")

	got := DotenvPath()
	want := "/tmp/test-iast/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}

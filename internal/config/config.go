package config

import "time"

// Config is the root configuration for the gateway.
type Config struct {
	Gateway     GatewayConfig     `json:"gateway"`
	Session     SessionConfig     `json:"session"`
	Emulator    EmulatorConfig    `json:"emulator"`
	Persistence PersistenceConfig `json:"persistence"`
	Events      EventsConfig      `json:"events"`
	Secrets     SecretsConfig     `json:"secrets"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Netstore    NetstoreConfig    `json:"netstore"`
}

// GatewayConfig holds the gateway HTTP/WS server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SessionConfig controls SessionRegistry capacity and grace period.
type SessionConfig struct {
	MaxSessions         int `json:"max_sessions"`          // default: 10
	GracePeriodSeconds  int `json:"grace_period_seconds"`  // default: 60
	ParallelMaxSessions int `json:"parallel_max_sessions"` // default: 5
}

// EmulatorConfig configures how new emulator sessions are opened.
type EmulatorConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Secure    *bool  `json:"secure"`      // default: false
	MaxWait   int    `json:"max_wait"`    // seconds, default: 30
	WaitSleep int    `json:"wait_sleep"`  // seconds, default: 1
}

// IsSecure returns whether TLS is used for emulator connections (default: false).
func (c EmulatorConfig) IsSecure() bool {
	return c.Secure != nil && *c.Secure
}

// PersistenceConfig configures the durable store backing the Persistence adapter.
type PersistenceConfig struct {
	DSN string `json:"dsn"` // sqlite DSN, e.g. "file:/var/lib/iast/iast.db?_pragma=busy_timeout(5000)"
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"` // default: 1024
	LogLevel   string `json:"log_level"`   // "debug" | "info" | "warn" | "error" (default: "info")
}

// SecretsConfig configures the age-encrypted credential store for unattended runs.
type SecretsConfig struct {
	KeyPath    string `json:"key_path"`    // default: $IAST_PATH/.age-key
	VaultPath  string `json:"vault_path"`  // default: $IAST_PATH/credentials.jsonc
}

// SchedulerConfig configures persisted cron-triggered AST runs.
type SchedulerConfig struct {
	Enabled *bool `json:"enabled"` // default: true

}

// IsEnabled returns whether the scheduler is enabled (default: true).
func (c SchedulerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// NetstoreConfig configures the local mount root item-source ASTs read
// office/department drop files from (internal/netstore).
type NetstoreConfig struct {
	Root string `json:"root"` // default: $IAST_PATH/netstore
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Package config resolves the party server configuration from the
// environment, including the persistence backend mode.
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
)

// BackendMode selects the persistence backend, resolved exactly once at
// startup. There is no per-request re-derivation.
type BackendMode int

const (
	// ModeFileOnly persists to the local JSON snapshot only.
	ModeFileOnly BackendMode = iota
	// ModeSupabasePrimary persists to the document store with the file
	// snapshot as fallback and backup.
	ModeSupabasePrimary
)

func (m BackendMode) String() string {
	if m == ModeSupabasePrimary {
		return "supabase-primary"
	}
	return "file-only"
}

// Config is the full server configuration.
type Config struct {
	// Listeners
	Port      int  `env:"PORT,default=3000"`
	AdminPort int  `env:"ADMIN_PORT,default=3001"`
	// Hosted deployments run a single listener; the admin mirror is served
	// on the main port's routes only.
	AdminDisabled bool `env:"ADMIN_DISABLED,default=false"`

	// Persistence
	DataFile         string `env:"DATA_FILE,default=party-data.json"`
	SupabaseURL      string `env:"SUPABASE_URL"`
	SupabaseKey      string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseTable    string `env:"SUPABASE_TABLE,default=party_state"`
	SupabaseRequired bool   `env:"SUPABASE_REQUIRED,default=false"`

	// Static content seed (optional YAML file)
	ContentFile string `env:"CONTENT_FILE"`

	// HTTP
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	// Logging
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load decodes the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("PORT must be positive")
	}
	if !c.AdminDisabled && c.AdminPort == c.Port {
		return fmt.Errorf("ADMIN_PORT must differ from PORT")
	}
	if c.SupabaseRequired && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_REQUIRED is set but SUPABASE_URL or SUPABASE_SERVICE_KEY is missing")
	}
	return nil
}

// Mode resolves the configured backend mode from credential presence.
func (c *Config) Mode() BackendMode {
	if c.SupabaseURL != "" && c.SupabaseKey != "" {
		return ModeSupabasePrimary
	}
	return ModeFileOnly
}

// Origins splits the allowed origin list.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

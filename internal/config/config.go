// Package config loads marchat settings from a TOML file.
//
// Values are resolved in this order: built-in defaults, the file, then
// MARCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultDisplayName = "Guest"
	// DefaultAdminKey is the shared credential the web client has always
	// sent with auth. It is not a secret.
	DefaultAdminKey   = "your-secret-admin-key"
	DefaultServerURL  = "ws://localhost:8080/ws"
	DefaultRelayAddr  = ":8080"
	DefaultLogLevel   = "info"
	DefaultConfigFile = "marchat.toml"
)

// Config is the complete marchat configuration shared by the client and
// the relay server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Identity IdentityConfig `toml:"identity"`
	Log      LogConfig      `toml:"log"`
	Relay    RelayConfig    `toml:"relay"`
}

// ServerConfig is the client's view of the server.
type ServerConfig struct {
	// URL is the last-used server address.
	URL string `toml:"url"`
}

type IdentityConfig struct {
	// DisplayName is announced in auth until the server assigns a name.
	DisplayName string `toml:"display_name"`
	AdminKey    string `toml:"admin_key"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

// RelayConfig configures cmd/server.
type RelayConfig struct {
	Addr     string `toml:"addr"`
	AdminKey string `toml:"admin_key"`
	// AllowedOrigins lists browser origins accepted on the websocket
	// endpoint. Empty means same-host only; "*" accepts any origin.
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{URL: DefaultServerURL},
		Identity: IdentityConfig{DisplayName: DefaultDisplayName, AdminKey: DefaultAdminKey},
		Log:      LogConfig{Level: DefaultLogLevel},
		Relay:    RelayConfig{Addr: DefaultRelayAddr, AdminKey: DefaultAdminKey},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
// Environment overrides and validation are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies MARCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"MARCHAT_SERVER_URL", &c.Server.URL},
		{"MARCHAT_DISPLAY_NAME", &c.Identity.DisplayName},
		{"MARCHAT_ADMIN_KEY", &c.Identity.AdminKey},
		{"MARCHAT_LOG_LEVEL", &c.Log.Level},
		{"MARCHAT_RELAY_ADDR", &c.Relay.Addr},
		{"MARCHAT_RELAY_ADMIN_KEY", &c.Relay.AdminKey},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && strings.TrimSpace(v) != "" {
			*o.dst = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("MARCHAT_RELAY_ORIGINS"); strings.TrimSpace(v) != "" {
		c.Relay.AllowedOrigins = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) fillDefaults() {
	d := Default()
	if strings.TrimSpace(c.Identity.DisplayName) == "" {
		c.Identity.DisplayName = d.Identity.DisplayName
	}
	if c.Identity.AdminKey == "" {
		c.Identity.AdminKey = d.Identity.AdminKey
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Relay.Addr == "" {
		c.Relay.Addr = d.Relay.Addr
	}
	if c.Relay.AdminKey == "" {
		c.Relay.AdminKey = d.Relay.AdminKey
	}
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks field values. An empty server URL is allowed; the client
// reports it when connecting.
func (c *Config) Validate() error {
	var errs []error

	if u := strings.TrimSpace(c.Server.URL); u != "" {
		parsed, err := url.Parse(u)
		if err != nil {
			errs = append(errs, ValidationError{Field: "server.url", Message: err.Error()})
		} else if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			errs = append(errs, ValidationError{Field: "server.url", Message: "scheme must be ws or wss"})
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", name)
	}
	return level, nil
}

// Save writes c to path as TOML, creating the parent directory.
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# marchat configuration")
	fmt.Fprintln(file)

	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// RememberServer stores url as the last-used server address in path,
// keeping the rest of the file.
func RememberServer(path, serverURL string) error {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Server.URL = strings.TrimSpace(serverURL)
	return Save(cfg, path)
}

// Package config decodes the YAML configuration file shared by
// cmd/snas-server and cmd/snasctl, the same way the teacher's
// cmd/warren apply.go decodes declarative manifests with
// gopkg.in/yaml.v3. Cobra flags on each command override whatever a
// config file sets; a zero Config is valid and falls back to the
// defaults named in spec.md §6-7.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values from spec.md §6-7.
const (
	DefaultBusURL         = "nats://127.0.0.1:4222"
	DefaultBucket         = "snas"
	DefaultHistory        = 4
	DefaultAdminPrefix    = "snas.admin"
	DefaultUserPrefix     = "snas.user"
	DefaultSocketPath     = "/var/run/snas/user.sock"
	DefaultResetTTL       = 24 * time.Hour
	DefaultRequestTimeout = 5 * time.Second
)

// Config is the top-level shape of the YAML config file. Every field has
// a sensible zero value so a missing config file (or a missing section
// within one) still produces a runnable configuration.
type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Store    StoreConfig    `yaml:"store"`
	Socket   SocketConfig   `yaml:"socket"`
	Accounts AccountsConfig `yaml:"accounts"`
	Log      LogConfig      `yaml:"log"`
}

type BusConfig struct {
	URL            string        `yaml:"url"`
	AdminPrefix    string        `yaml:"admin_prefix"`
	UserPrefix     string        `yaml:"user_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StoreConfig struct {
	Bucket  string `yaml:"bucket"`
	History uint8  `yaml:"history"`
}

type SocketConfig struct {
	Path string `yaml:"path"`
}

// AccountsConfig holds account-lifecycle policy shared by AddUser and the
// reset-phase FSM: default groups applied when add_user doesn't name any,
// and how long a Reset/InitialLogin phase stays valid before lapsing to
// Locked (spec.md §3's "Δ defaults to 24h").
type AccountsConfig struct {
	DefaultGroups   []string      `yaml:"default_groups"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
	InitialLoginTTL time.Duration `yaml:"initial_login_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads and decodes the YAML file at path. A missing path is not an
// error: callers get back a zero Config and apply Defaults() themselves,
// the same tolerant-of-absence behavior the teacher's flag parsing has
// for optional config.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return cfg, nil
}

// Defaults fills every unset field with the spec's documented default,
// called after Load and after command-line flags have been layered on
// top so flags win over the file and the file wins over the built-in
// default.
func (c Config) Defaults() Config {
	if c.Bus.URL == "" {
		c.Bus.URL = DefaultBusURL
	}
	if c.Bus.AdminPrefix == "" {
		c.Bus.AdminPrefix = DefaultAdminPrefix
	}
	if c.Bus.UserPrefix == "" {
		c.Bus.UserPrefix = DefaultUserPrefix
	}
	if c.Bus.RequestTimeout == 0 {
		c.Bus.RequestTimeout = DefaultRequestTimeout
	}
	if c.Store.Bucket == "" {
		c.Store.Bucket = DefaultBucket
	}
	if c.Store.History == 0 {
		c.Store.History = DefaultHistory
	}
	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Accounts.ResetTTL == 0 {
		c.Accounts.ResetTTL = DefaultResetTTL
	}
	if c.Accounts.InitialLoginTTL == 0 {
		c.Accounts.InitialLoginTTL = DefaultResetTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return c
}

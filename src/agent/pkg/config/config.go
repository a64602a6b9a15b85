// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package config loads the daemon configuration from defaults, an
// optional YAML file, WRL_* environment variables and command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. WRL_API_PORT
const EnvPrefix = "WRL"

// MaxClientCapacity bounds clients.capacity
const MaxClientCapacity = 4096

// MinHandleOffset keeps client handles clear of the interface classes
// 1:1 and 1:2.
const MinHandleOffset = 3

// Config is the complete daemon configuration
type Config struct {
	Interval   time.Duration    `mapstructure:"interval"`
	Bus        BusConfig        `mapstructure:"bus"`
	Clients    ClientsConfig    `mapstructure:"clients"`
	Interfaces InterfacesConfig `mapstructure:"interfaces"`
	Backend    BackendConfig    `mapstructure:"backend"`
	API        APIConfig        `mapstructure:"api"`
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Policy     PolicyConfig     `mapstructure:"policy"`
}

// BusConfig selects the ubus objects to watch
type BusConfig struct {
	Prefix  string        `mapstructure:"prefix"`
	Timeout time.Duration `mapstructure:"timeout"`
	Binary  string        `mapstructure:"binary"`
}

// ClientsConfig sizes the per-interface client table
type ClientsConfig struct {
	Capacity     int `mapstructure:"capacity"`
	HandleOffset int `mapstructure:"handle_offset"`
}

// InterfacesConfig controls interface expiry
type InterfacesConfig struct {
	MissingThreshold int `mapstructure:"missing_threshold"`
}

// BackendConfig selects the shaping backend
type BackendConfig struct {
	Type      string `mapstructure:"type"`
	ScriptDir string `mapstructure:"script_dir"`
}

// APIConfig configures the HTTP control surface
type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig enables policy persistence when Path is set
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// PolicyRule is one startup policy entry. An empty interface is the
// wildcard.
type PolicyRule struct {
	Interface string `mapstructure:"interface"`
	Down      uint32 `mapstructure:"down"`
	Up        uint32 `mapstructure:"up"`
}

// PolicyConfig is the policy written at startup
type PolicyConfig struct {
	Interfaces []PolicyRule `mapstructure:"interfaces"`
	Clients    []PolicyRule `mapstructure:"clients"`
}

// SetDefaults registers the default of every key with v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("interval", reconciler.DefaultInterval)

	v.SetDefault("bus.prefix", reconciler.DefaultPrefix)
	v.SetDefault("bus.timeout", time.Second)
	v.SetDefault("bus.binary", "ubus")

	v.SetDefault("clients.capacity", registry.DefaultClientCapacity)
	v.SetDefault("clients.handle_offset", reconciler.DefaultHandleOffset)
	v.SetDefault("interfaces.missing_threshold", registry.DefaultMissingThreshold)

	v.SetDefault("backend.type", dataplane.BackendScript)
	v.SetDefault("backend.script_dir", dataplane.DefaultScriptDir)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
	v.SetDefault("api.idle_timeout", 60*time.Second)
	v.SetDefault("api.enable_cors", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("storage.path", "")
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"interval":    "interval",
	"bus-prefix":  "bus.prefix",
	"bus-timeout": "bus.timeout",
	"ubus":        "bus.binary",
	"backend":     "backend.type",
	"script-dir":  "backend.script_dir",
	"enable-api":  "api.enabled",
	"api-host":    "api.host",
	"api-port":    "api.port",
	"log-level":   "log.level",
	"storage":     "storage.path",
}

// RegisterFlags adds the configuration flags to flags. Flag defaults are
// informational; unset flags never override the file or environment.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Configuration file (YAML)")
	flags.Duration("interval", reconciler.DefaultInterval, "Reconciliation interval")
	flags.String("bus-prefix", reconciler.DefaultPrefix, "Bus object prefix of wireless interfaces")
	flags.Duration("bus-timeout", time.Second, "Timeout of a single bus call")
	flags.String("ubus", "ubus", "Path of the ubus binary")
	flags.StringP("backend", "b", dataplane.BackendScript, "Shaping backend (script, netlink, dry-run)")
	flags.String("script-dir", dataplane.DefaultScriptDir, "Directory of the shaping scripts")
	flags.BoolP("enable-api", "a", true, "Enable REST API server")
	flags.String("api-host", "127.0.0.1", "API server host")
	flags.Int("api-port", 8080, "API server port")
	flags.StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")
	flags.String("storage", "", "SQLite database for policy persistence (disabled if empty)")
}

// BindFlags binds the flags registered by RegisterFlags to v
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	if flag := flags.Lookup("config"); flag != nil {
		if err := v.BindPFlag("config", flag); err != nil {
			return fmt.Errorf("binding flag config: %w", err)
		}
	}
	return nil
}

// Load reads the configuration from v, including the file named by the
// "config" key, and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
		log.Debugf("Loaded configuration from %s", file)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.Clients.Capacity < 1 || c.Clients.Capacity > MaxClientCapacity {
		errs = append(errs, fmt.Errorf("clients.capacity must be within 1..%d, got %d", MaxClientCapacity, c.Clients.Capacity))
	}
	if c.Clients.HandleOffset < MinHandleOffset {
		errs = append(errs, fmt.Errorf("clients.handle_offset must be at least %d, got %d", MinHandleOffset, c.Clients.HandleOffset))
	}
	if c.Interfaces.MissingThreshold < 1 {
		errs = append(errs, fmt.Errorf("interfaces.missing_threshold must be at least 1, got %d", c.Interfaces.MissingThreshold))
	}
	if c.Bus.Prefix == "" {
		errs = append(errs, errors.New("bus.prefix must not be empty"))
	}

	switch c.Backend.Type {
	case dataplane.BackendScript, dataplane.BackendNetlink, dataplane.BackendDryRun:
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", c.Backend.Type))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, fmt.Errorf("api.port must be within 1..65535, got %d", c.API.Port))
	}

	return errors.Join(errs...)
}

// ReconcilerConfig returns the engine settings
func (c *Config) ReconcilerConfig() reconciler.Config {
	return reconciler.Config{
		Interval:     c.Interval,
		Prefix:       c.Bus.Prefix,
		HandleOffset: c.Clients.HandleOffset,
	}
}

// RegistryOptions returns the registry sizing options
func (c *Config) RegistryOptions() []registry.Option {
	return []registry.Option{
		registry.WithClientCapacity(c.Clients.Capacity),
		registry.WithMissingThreshold(c.Interfaces.MissingThreshold),
	}
}

// ApplyPolicy writes the startup policy into store
func (c *Config) ApplyPolicy(store *policy.Store) {
	for _, rule := range c.Policy.Interfaces {
		store.SetInterfacePolicy(policy.InterfaceSelectors{Interface: rule.Interface},
			policy.Rate{Down: rule.Down, Up: rule.Up})
	}
	for _, rule := range c.Policy.Clients {
		store.SetClientPolicy(policy.ClientSelectors{Interface: rule.Interface},
			policy.Rate{Down: rule.Down, Up: rule.Up})
	}
}

// APIServerConfig returns the HTTP server settings, including the view of the
// effective configuration served at /api/v1/config.
func (c *Config) APIServerConfig() *api.Config {
	return &api.Config{
		Host:         c.API.Host,
		Port:         c.API.Port,
		ReadTimeout:  c.API.ReadTimeout,
		WriteTimeout: c.API.WriteTimeout,
		IdleTimeout:  c.API.IdleTimeout,
		EnableCORS:   c.API.EnableCORS,
		LogLevel:     c.Log.Level,
		Settings: &models.ConfigResponse{
			Interval:         c.Interval.String(),
			BusPrefix:        c.Bus.Prefix,
			Backend:          c.Backend.Type,
			ClientCapacity:   c.Clients.Capacity,
			HandleOffset:     c.Clients.HandleOffset,
			MissingThreshold: c.Interfaces.MissingThreshold,
			LogLevel:         c.Log.Level,
			Storage:          c.Storage.Path,
			APIHost:          c.API.Host,
			APIPort:          c.API.Port,
		},
	}
}

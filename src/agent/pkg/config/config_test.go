// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, "hostapd.", cfg.Bus.Prefix)
	assert.Equal(t, time.Second, cfg.Bus.Timeout)
	assert.Equal(t, "ubus", cfg.Bus.Binary)
	assert.Equal(t, 256, cfg.Clients.Capacity)
	assert.Equal(t, 10, cfg.Clients.HandleOffset)
	assert.Equal(t, 3, cfg.Interfaces.MissingThreshold)
	assert.Equal(t, "script", cfg.Backend.Type)
	assert.Equal(t, "/lib/wireless-rate-limiter", cfg.Backend.ScriptDir)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 10*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Storage.Path)
	assert.Empty(t, cfg.Policy.Interfaces)
	assert.Empty(t, cfg.Policy.Clients)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("WRL_API_PORT", "9090")
	t.Setenv("WRL_BACKEND_TYPE", "dry-run")
	t.Setenv("WRL_INTERVAL", "250ms")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "dry-run", cfg.Backend.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
}

func TestLoad_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wrl.yaml")
	content := `
interval: 2s
backend:
  type: netlink
clients:
  capacity: 64
log:
  level: debug
policy:
  interfaces:
    - interface: wlan0
      down: 20480
      up: 10240
  clients:
    - interface: ""
      down: 8192
      up: 3072
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	v := viper.New()
	v.Set("config", file)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, "netlink", cfg.Backend.Type)
	assert.Equal(t, 64, cfg.Clients.Capacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []PolicyRule{{Interface: "wlan0", Down: 20480, Up: 10240}}, cfg.Policy.Interfaces)
	assert.Equal(t, []PolicyRule{{Interface: "", Down: 8192, Up: 3072}}, cfg.Policy.Clients)

	// untouched keys keep their defaults
	assert.Equal(t, "hostapd.", cfg.Bus.Prefix)
}

func TestLoad_MissingFile(t *testing.T) {
	v := viper.New()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("WRL_API_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--api-port", "7070", "-b", "dry-run"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, flags))

	cfg, err := Load(v)
	require.NoError(t, err)

	// explicit flags beat the environment
	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, "dry-run", cfg.Backend.Type)
	// unset flags do not shadow defaults
	assert.Equal(t, time.Second, cfg.Interval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(viper.New())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
		{"zero capacity", func(c *Config) { c.Clients.Capacity = 0 }},
		{"huge capacity", func(c *Config) { c.Clients.Capacity = MaxClientCapacity + 1 }},
		{"negative handle offset", func(c *Config) { c.Clients.HandleOffset = -1 }},
		{"handle offset on interface class", func(c *Config) { c.Clients.HandleOffset = 2 }},
		{"zero handle offset", func(c *Config) { c.Clients.HandleOffset = 0 }},
		{"zero missing threshold", func(c *Config) { c.Interfaces.MissingThreshold = 0 }},
		{"empty prefix", func(c *Config) { c.Bus.Prefix = "" }},
		{"unknown backend", func(c *Config) { c.Backend.Type = "tc-bpf" }},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
		{"bad api port", func(c *Config) { c.API.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("api port ignored when disabled", func(t *testing.T) {
		cfg := valid()
		cfg.API.Enabled = false
		cfg.API.Port = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("lowest handle offset", func(t *testing.T) {
		cfg := valid()
		cfg.Clients.HandleOffset = MinHandleOffset
		assert.NoError(t, cfg.Validate())
	})
}

func TestApplyPolicy(t *testing.T) {
	cfg := &Config{
		Policy: PolicyConfig{
			Interfaces: []PolicyRule{
				{Interface: "", Down: 100, Up: 100},
				{Interface: "wlan0", Down: 200, Up: 50},
			},
			Clients: []PolicyRule{{Interface: "wlan1", Down: 10, Up: 5}},
		},
	}

	store := policy.NewStore()
	cfg.ApplyPolicy(store)

	assert.Equal(t, policy.Rate{Down: 200, Up: 50}, store.ResolveInterface("wlan0"))
	assert.Equal(t, policy.Rate{Down: 100, Up: 100}, store.ResolveInterface("wlan9"))
	assert.Equal(t, policy.Rate{Down: 10, Up: 5}, store.ResolveClient("wlan1"))
	assert.Equal(t, policy.Rate{}, store.ResolveClient("wlan0"))
}

func TestReconcilerConfig(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	rc := cfg.ReconcilerConfig()
	assert.Equal(t, time.Second, rc.Interval)
	assert.Equal(t, "hostapd.", rc.Prefix)
	assert.Equal(t, 10, rc.HandleOffset)
	assert.Len(t, cfg.RegistryOptions(), 2)
}

func TestAPIServerConfig(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	ac := cfg.APIServerConfig()
	assert.Equal(t, "127.0.0.1", ac.Host)
	assert.Equal(t, 8080, ac.Port)
	require.NotNil(t, ac.Settings)
	assert.Equal(t, "1s", ac.Settings.Interval)
	assert.Equal(t, "script", ac.Settings.Backend)
	assert.Equal(t, 256, ac.Settings.ClientCapacity)
}

// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/bus"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/config"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "wireless-rate-limiter",
	Short: "Per-client bandwidth shaping for hostapd access points",
	Long: `Watches hostapd instances on the system bus and keeps traffic shaping for
every wireless interface and associated client in line with the configured
rate policies.`,
	SilenceUsage: true,
	RunE:         runAgent,
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
}

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}

func closeStorage(storage io.Closer) {
	if err := storage.Close(); err != nil {
		log.Warnf("Failed to close policy storage: %v", err)
	}
}

// openStore creates the policy store, restoring persisted policy first
// so that rules from the config file take precedence.
func openStore(cfg *config.Config) (*policy.Store, func(), error) {
	if cfg.Storage.Path == "" {
		store := policy.NewStore()
		cfg.ApplyPolicy(store)
		return store, func() {}, nil
	}

	storage, err := policy.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open policy storage: %w", err)
	}

	store := policy.NewStoreWithStorage(storage)
	if err := store.LoadPersisted(); err != nil {
		closeStorage(storage)
		return nil, nil, fmt.Errorf("load persisted policy: %w", err)
	}
	cfg.ApplyPolicy(store)

	return store, func() { closeStorage(storage) }, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Log.Level); err != nil {
		return err
	}

	log.Info("Starting wireless rate limiter")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ubus := bus.NewUbus(cfg.Bus.Binary, cfg.Bus.Timeout)
	if err := ubus.Ping(ctx); err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	log.Info("✓ Connected to bus")

	shaper, err := dataplane.NewShaper(cfg.Backend.Type, cfg.Backend.ScriptDir)
	if err != nil {
		return err
	}
	dp := dataplane.New(shaper)
	log.Infof("✓ Shaping backend %q initialized", cfg.Backend.Type)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Infof("✓ Policy store initialized (%d interface, %d client rules)",
		len(store.InterfacePolicies()), len(store.ClientPolicies()))

	rc := cfg.ReconcilerConfig()
	rc.Registerer = prometheus.DefaultRegisterer
	engine := reconciler.New(rc, ubus, dp, store, registry.New(cfg.RegistryOptions()...))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx)
	})

	if cfg.API.Enabled {
		apiConfig := cfg.APIServerConfig()
		apiConfig.Gatherer = prometheus.DefaultGatherer

		apiServer, err := api.NewAPIServer(apiConfig, dp, engine)
		if err != nil {
			stop()
			g.Wait()
			return fmt.Errorf("create API server: %w", err)
		}
		g.Go(func() error {
			return apiServer.Run(ctx)
		})
		log.Infof("✓ API server enabled on http://%s:%d", cfg.API.Host, cfg.API.Port)
	}

	log.Info("✓ Agent running. Press Ctrl+C to exit")

	err = g.Wait()
	log.Info("Shutting down...")
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

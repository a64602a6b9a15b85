// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package e2e drives the reconciliation engine against the netlink
// shaping backend inside an isolated network namespace and inspects the
// resulting qdiscs, classes and filters.
package e2e

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/testutil"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

// BusPath is the bus object the fake hostapd registers for the veth
const BusPath = reconciler.DefaultPrefix + "wlan0"

// E2ETestEnv is a complete end-to-end test environment: a namespace
// with a stand-in wireless interface, a fake bus announcing it, and an
// engine shaping it through netlink.
type E2ETestEnv struct {
	T         *testing.T
	Network   *testutil.TestNetwork
	Bus       *testutil.FakeBus
	DataPlane *dataplane.DataPlane
	Store     *policy.Store
	Storage   *policy.SQLiteStorage
	Engine    *reconciler.Engine
	handle    *netlink.Handle

	cleanupFuncs []func()
}

// NewE2ETestEnv creates the namespace and wires the engine to it. The
// engine is driven step by step with Step.
func NewE2ETestEnv(t *testing.T) (*E2ETestEnv, error) {
	env := &E2ETestEnv{
		T:   t,
		Bus: testutil.NewFakeBus(),
	}

	if msg := testutil.CheckE2ERequirements(); msg != "" {
		return nil, fmt.Errorf("E2E requirements not met: %s", msg)
	}

	network, err := testutil.NewTestNetwork()
	if err != nil {
		return nil, fmt.Errorf("failed to create test network: %w", err)
	}
	env.Network = network
	env.addCleanup(network.Cleanup)

	handle, err := network.Handle()
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to open netlink handle: %w", err)
	}
	env.handle = handle
	env.addCleanup(handle.Close)

	storage, err := policy.NewSQLiteStorage(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	env.Storage = storage
	env.addCleanup(func() {
		storage.Close()
	})

	env.Store = policy.NewStoreWithStorage(storage)
	env.DataPlane = dataplane.New(dataplane.NewNetlinkShaper())
	env.Engine = reconciler.New(reconciler.DefaultConfig(), env.Bus, env.DataPlane, env.Store, registry.New())

	return env, nil
}

// addCleanup adds a cleanup function to be called on test teardown.
func (env *E2ETestEnv) addCleanup(fn func()) {
	env.cleanupFuncs = append(env.cleanupFuncs, fn)
}

// Cleanup releases all resources created by the test environment.
func (env *E2ETestEnv) Cleanup() {
	for i := len(env.cleanupFuncs) - 1; i >= 0; i-- {
		env.cleanupFuncs[i]()
	}
}

// Step runs one reconciliation pass inside the namespace.
func (env *E2ETestEnv) Step() {
	env.T.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := env.Network.Run(func() error {
		env.Engine.Tick(ctx)
		return env.Engine.Settle(ctx)
	})
	require.NoError(env.T, err)
}

// Converge runs the two passes needed to discover and shape clients.
func (env *E2ETestEnv) Converge() {
	env.T.Helper()
	env.Step()
	env.Step()
}

func (env *E2ETestEnv) link() netlink.Link {
	env.T.Helper()
	link, err := env.handle.LinkByName(env.Network.Interface)
	require.NoError(env.T, err)
	return link
}

// Qdiscs lists the qdiscs of the shaped interface.
func (env *E2ETestEnv) Qdiscs() []netlink.Qdisc {
	env.T.Helper()
	qdiscs, err := env.handle.QdiscList(env.link())
	require.NoError(env.T, err)
	return qdiscs
}

// HasQdisc reports whether a qdisc of the given type and handle exists.
func (env *E2ETestEnv) HasQdisc(kind string, handle uint32) bool {
	for _, q := range env.Qdiscs() {
		if q.Type() == kind && q.Attrs().Handle == handle {
			return true
		}
	}
	return false
}

// HTBClass returns the htb class with the given handle, or nil.
func (env *E2ETestEnv) HTBClass(handle uint32) *netlink.HtbClass {
	env.T.Helper()
	classes, err := env.handle.ClassList(env.link(), netlink.MakeHandle(1, 0))
	require.NoError(env.T, err)
	for _, c := range classes {
		if htb, ok := c.(*netlink.HtbClass); ok && htb.Handle == handle {
			return htb
		}
	}
	return nil
}

// Filters lists the filters attached below parent.
func (env *E2ETestEnv) Filters(parent uint32) []netlink.Filter {
	env.T.Helper()
	filters, err := env.handle.FilterList(env.link(), parent)
	require.NoError(env.T, err)
	return filters
}

// FilterPriorities returns the set of priorities used below parent.
func (env *E2ETestEnv) FilterPriorities(parent uint32) map[uint16]bool {
	prios := make(map[uint16]bool)
	for _, f := range env.Filters(parent) {
		prios[f.Attrs().Priority] = true
	}
	return prios
}

// GetStatistics retrieves the backend command counters.
func (env *E2ETestEnv) GetStatistics() dataplane.Statistics {
	return env.DataPlane.GetStatistics()
}

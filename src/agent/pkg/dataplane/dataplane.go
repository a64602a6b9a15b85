// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
)

// Shaper applies rate limits to the traffic-shaping backend. Rates are in
// kbit/s and are never zero: callers substitute a ceiling for "unlimited".
// Every call must be idempotent.
type Shaper interface {
	// SetInterfaceRate adds or replaces the shaping of a whole interface
	SetInterfaceRate(ctx context.Context, iface string, down, up uint32) error

	// RemoveInterface drops all shaping of an interface, clients included
	RemoveInterface(ctx context.Context, iface string) error

	// SetClientRate adds or replaces the shaping of one client. handle
	// identifies the client within its interface.
	SetClientRate(ctx context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error

	// RemoveClient drops the shaping of one client
	RemoveClient(ctx context.Context, handle int, iface string) error
}

// Statistics holds backend command counters
type Statistics struct {
	InterfaceSets    uint64
	InterfaceRemoves uint64
	ClientSets       uint64
	ClientRemoves    uint64
	Failures         uint64
}

// Total returns the number of commands issued
func (s Statistics) Total() uint64 {
	return s.InterfaceSets + s.InterfaceRemoves + s.ClientSets + s.ClientRemoves
}

// DataPlaneInterface is the read side of the data plane used by the API.
type DataPlaneInterface interface {
	GetStatistics() Statistics
}

var _ DataPlaneInterface = (*DataPlane)(nil)

// DataPlane wraps a Shaper and counts the commands passed through it.
// Counters may be read from any goroutine.
type DataPlane struct {
	shaper Shaper

	interfaceSets    atomic.Uint64
	interfaceRemoves atomic.Uint64
	clientSets       atomic.Uint64
	clientRemoves    atomic.Uint64
	failures         atomic.Uint64
}

// New creates a data plane on top of shaper
func New(shaper Shaper) *DataPlane {
	return &DataPlane{shaper: shaper}
}

// Ensure DataPlane can stand in for its shaper
var _ Shaper = (*DataPlane)(nil)

func (dp *DataPlane) record(counter *atomic.Uint64, err error) error {
	counter.Add(1)
	if err != nil {
		dp.failures.Add(1)
	}
	return err
}

// SetInterfaceRate forwards to the shaper
func (dp *DataPlane) SetInterfaceRate(ctx context.Context, iface string, down, up uint32) error {
	return dp.record(&dp.interfaceSets, dp.shaper.SetInterfaceRate(ctx, iface, down, up))
}

// RemoveInterface forwards to the shaper
func (dp *DataPlane) RemoveInterface(ctx context.Context, iface string) error {
	return dp.record(&dp.interfaceRemoves, dp.shaper.RemoveInterface(ctx, iface))
}

// SetClientRate forwards to the shaper
func (dp *DataPlane) SetClientRate(ctx context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error {
	return dp.record(&dp.clientSets, dp.shaper.SetClientRate(ctx, handle, iface, addr, down, up))
}

// RemoveClient forwards to the shaper
func (dp *DataPlane) RemoveClient(ctx context.Context, handle int, iface string) error {
	return dp.record(&dp.clientRemoves, dp.shaper.RemoveClient(ctx, handle, iface))
}

// GetStatistics returns a snapshot of the command counters
func (dp *DataPlane) GetStatistics() Statistics {
	return Statistics{
		InterfaceSets:    dp.interfaceSets.Load(),
		InterfaceRemoves: dp.interfaceRemoves.Load(),
		ClientSets:       dp.clientSets.Load(),
		ClientRemoves:    dp.clientRemoves.Load(),
		Failures:         dp.failures.Load(),
	}
}

// Backend names accepted by NewShaper
const (
	BackendScript  = "script"
	BackendNetlink = "netlink"
	BackendDryRun  = "dry-run"
)

// NewShaper creates the shaper called name. scriptDir is only used by
// the script backend.
func NewShaper(name, scriptDir string) (Shaper, error) {
	switch name {
	case BackendScript, "":
		return NewScriptShaper(scriptDir), nil
	case BackendNetlink:
		return NewNetlinkShaper(), nil
	case BackendDryRun:
		return DryRunShaper{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

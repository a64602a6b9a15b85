// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package testutil provides fakes and helpers shared by the tests: an
// in-memory bus, a recording shaper, and an isolated network namespace
// for exercising the netlink backend.
package testutil

import (
	"fmt"
	"os"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// TestNetwork is an isolated network namespace holding one veth pair.
// The first end stands in for a wireless interface.
type TestNetwork struct {
	NS         netns.NsHandle
	OriginalNS netns.NsHandle

	// Interface is shaped by the tests; Peer is its other end.
	Interface string
	Peer      string
}

// NetworkConfig contains configuration for test network creation.
type NetworkConfig struct {
	Interface string
	Peer      string
}

// DefaultNetworkConfig returns default configuration for test network.
func DefaultNetworkConfig() *NetworkConfig {
	return &NetworkConfig{
		Interface: "wlan0",
		Peer:      "wlan0-peer",
	}
}

// NewTestNetwork creates a namespace with the default veth pair.
//
//	[Test NS]
//	wlan0 <--------> wlan0-peer
func NewTestNetwork() (*TestNetwork, error) {
	return NewTestNetworkWithConfig(DefaultNetworkConfig())
}

// NewTestNetworkWithConfig creates a test network with custom configuration.
func NewTestNetworkWithConfig(cfg *NetworkConfig) (*TestNetwork, error) {
	// namespace switches are per thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	originalNS, err := netns.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to get original namespace: %w", err)
	}

	tn := &TestNetwork{
		OriginalNS: originalNS,
		Interface:  cfg.Interface,
		Peer:       cfg.Peer,
	}

	ns, err := netns.New()
	if err != nil {
		tn.Cleanup()
		return nil, fmt.Errorf("failed to create namespace: %w", err)
	}
	tn.NS = ns

	err = tn.configure()
	if setErr := netns.Set(originalNS); setErr != nil && err == nil {
		err = fmt.Errorf("failed to return to original namespace: %w", setErr)
	}
	if err != nil {
		tn.Cleanup()
		return nil, err
	}

	return tn, nil
}

// configure creates the veth pair inside the current namespace
func (tn *TestNetwork) configure() error {
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{
			Name: tn.Interface,
		},
		PeerName: tn.Peer,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("failed to create veth pair: %w", err)
	}

	for _, name := range []string{"lo", tn.Interface, tn.Peer} {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", name, err)
		}
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to bring up %s: %w", name, err)
		}
	}

	return nil
}

// Run executes fn inside the test namespace.
func (tn *TestNetwork) Run(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := netns.Set(tn.NS); err != nil {
		return fmt.Errorf("failed to enter namespace: %w", err)
	}

	err := fn()

	if setErr := netns.Set(tn.OriginalNS); setErr != nil {
		if err != nil {
			return fmt.Errorf("function error: %v, namespace restore error: %w", err, setErr)
		}
		return fmt.Errorf("failed to restore namespace: %w", setErr)
	}

	return err
}

// Handle returns a netlink handle bound to the test namespace. The
// caller closes it.
func (tn *TestNetwork) Handle() (*netlink.Handle, error) {
	return netlink.NewHandleAt(tn.NS)
}

// Cleanup releases the namespace; its links go with it.
func (tn *TestNetwork) Cleanup() {
	if tn.NS != 0 {
		_ = tn.NS.Close()
	}
	if tn.OriginalNS != 0 {
		_ = tn.OriginalNS.Close()
	}
}

// IsRoot checks if the current process has root privileges.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// HasCapability checks if the process has a specific capability.
func HasCapability(cap int) bool {
	var header unix.CapUserHeader
	var data [2]unix.CapUserData

	header.Version = unix.LINUX_CAPABILITY_VERSION_3
	header.Pid = 0 // Current process

	if err := unix.Capget(&header, &data[0]); err != nil {
		return false
	}

	capMask := uint32(1 << uint(cap%32))
	return (data[cap/32].Effective & capMask) != 0
}

// CheckE2ERequirements returns why the environment cannot run the
// namespace tests, or "" when it can.
func CheckE2ERequirements() string {
	if !IsRoot() && !HasCapability(unix.CAP_NET_ADMIN) {
		return "E2E tests require root privileges or CAP_NET_ADMIN capability"
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	original, err := netns.Get()
	if err != nil {
		return fmt.Sprintf("Network namespaces not supported: %v", err)
	}
	defer original.Close()

	testNS, err := netns.New()
	if err != nil {
		return fmt.Sprintf("Network namespaces not supported: %v", err)
	}
	_ = netns.Set(original)
	_ = testNS.Close()

	return ""
}

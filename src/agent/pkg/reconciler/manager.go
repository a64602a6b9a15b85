// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package reconciler

import (
	"context"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
)

// Ensure Engine implements policy.Manager
var _ policy.Manager = (*Engine)(nil)

// SetInterfacePolicy writes an interface policy and cancels any purge.
func (e *Engine) SetInterfacePolicy(ctx context.Context, sel policy.InterfaceSelectors, rate policy.Rate) (policy.InterfaceEntry, error) {
	var entry policy.InterfaceEntry
	err := e.Do(ctx, func(s *State) error {
		entry = s.SetInterfacePolicy(sel, rate)
		return nil
	})
	return entry, err
}

// SetClientPolicy writes a client policy and cancels any purge.
func (e *Engine) SetClientPolicy(ctx context.Context, sel policy.ClientSelectors, rate policy.Rate) (policy.ClientEntry, error) {
	var entry policy.ClientEntry
	err := e.Do(ctx, func(s *State) error {
		entry = s.SetClientPolicy(sel, rate)
		return nil
	})
	return entry, err
}

// InterfacePolicy returns the entry an interface called name resolves to.
// The empty name looks up the wildcard entry.
func (e *Engine) InterfacePolicy(ctx context.Context, name string) (policy.InterfaceEntry, bool, error) {
	var (
		entry policy.InterfaceEntry
		found bool
	)
	err := e.Do(ctx, func(s *State) error {
		if p, _ := s.Policies.GetInterfacePolicy(policy.InterfaceSelectors{Interface: name}, false); p != nil {
			entry, found = *p, true
		}
		return nil
	})
	return entry, found, err
}

// ClientPolicy returns the entry clients of the interface called name
// resolve to.
func (e *Engine) ClientPolicy(ctx context.Context, name string) (policy.ClientEntry, bool, error) {
	var (
		entry policy.ClientEntry
		found bool
	)
	err := e.Do(ctx, func(s *State) error {
		if p, _ := s.Policies.GetClientPolicy(policy.ClientSelectors{Interface: name}, false); p != nil {
			entry, found = *p, true
		}
		return nil
	})
	return entry, found, err
}

// ListInterfacePolicies returns the interface table in insertion order
func (e *Engine) ListInterfacePolicies(ctx context.Context) ([]policy.InterfaceEntry, error) {
	var entries []policy.InterfaceEntry
	err := e.Do(ctx, func(s *State) error {
		entries = s.Policies.InterfacePolicies()
		return nil
	})
	return entries, err
}

// ListClientPolicies returns the client table in insertion order
func (e *Engine) ListClientPolicies(ctx context.Context) ([]policy.ClientEntry, error) {
	var entries []policy.ClientEntry
	err := e.Do(ctx, func(s *State) error {
		entries = s.Policies.ClientPolicies()
		return nil
	})
	return entries, err
}

// Purge clears all policy and removes all shaping on the next pass.
func (e *Engine) Purge(ctx context.Context) error {
	return e.Do(ctx, func(s *State) error {
		s.RequestPurge()
		return nil
	})
}

// InterfaceStatus is a snapshot of a live interface
type InterfaceStatus struct {
	Name      string      `json:"name"`
	SessionID uint32      `json:"session_id"`
	Rate      policy.Rate `json:"rate"`
	Applied   bool        `json:"applied"`
	Missing   int         `json:"missing"`
	Clients   int         `json:"clients"`
}

// ClientStatus is a snapshot of a live client
type ClientStatus struct {
	Address   mac.Addr    `json:"address"`
	Interface string      `json:"interface"`
	Slot      int         `json:"slot"`
	Handle    int         `json:"handle"`
	Rate      policy.Rate `json:"rate"`
	Applied   bool        `json:"applied"`
}

// Status summarizes the engine state
type Status struct {
	Purge             PurgeState `json:"purge"`
	Interfaces        int        `json:"interfaces"`
	Clients           int        `json:"clients"`
	InterfacePolicies int        `json:"interface_policies"`
	ClientPolicies    int        `json:"client_policies"`
}

// Interfaces returns a snapshot of the live interfaces in discovery order
func (e *Engine) Interfaces(ctx context.Context) ([]InterfaceStatus, error) {
	var out []InterfaceStatus
	err := e.Do(ctx, func(s *State) error {
		out = s.Interfaces()
		return nil
	})
	return out, err
}

// Clients returns a snapshot of the live clients
func (e *Engine) Clients(ctx context.Context) ([]ClientStatus, error) {
	var out []ClientStatus
	err := e.Do(ctx, func(s *State) error {
		out = s.Clients(e.cfg.HandleOffset)
		return nil
	})
	return out, err
}

// Status returns the purge state and entity counts
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var out Status
	err := e.Do(ctx, func(s *State) error {
		out = s.Status()
		return nil
	})
	return out, err
}

// Interfaces returns a snapshot of the live interfaces
func (s *State) Interfaces() []InterfaceStatus {
	out := make([]InterfaceStatus, 0, len(s.Registry.Interfaces()))
	for _, iface := range s.Registry.Interfaces() {
		out = append(out, InterfaceStatus{
			Name:      iface.Name,
			SessionID: iface.SessionID,
			Rate:      iface.Rate,
			Applied:   iface.Applied,
			Missing:   iface.Missing,
			Clients:   iface.ClientCount(),
		})
	}
	return out
}

// Clients returns a snapshot of the live clients, by interface then slot
func (s *State) Clients(handleOffset int) []ClientStatus {
	out := make([]ClientStatus, 0, s.Registry.ClientCount())
	for _, iface := range s.Registry.Interfaces() {
		for _, client := range iface.Clients() {
			out = append(out, ClientStatus{
				Address:   client.Address,
				Interface: iface.Name,
				Slot:      client.Slot,
				Handle:    client.Slot + handleOffset,
				Rate:      client.Rate,
				Applied:   client.Applied,
			})
		}
	}
	return out
}

// Status summarizes the state
func (s *State) Status() Status {
	return Status{
		Purge:             s.Purge,
		Interfaces:        len(s.Registry.Interfaces()),
		Clients:           s.Registry.ClientCount(),
		InterfacePolicies: len(s.Policies.InterfacePolicies()),
		ClientPolicies:    len(s.Policies.ClientPolicies()),
	}
}

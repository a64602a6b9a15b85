// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package reconciler

import (
	"fmt"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	log "github.com/sirupsen/logrus"
)

// PurgeState tracks a requested removal of all shaping.
type PurgeState int

const (
	// PurgeNone is normal operation
	PurgeNone PurgeState = iota
	// PurgePending means the next pass removes all shaping
	PurgePending
	// PurgeDone means shaping was removed; nothing is applied until
	// policy is written again
	PurgeDone
)

func (p PurgeState) String() string {
	switch p {
	case PurgeNone:
		return "none"
	case PurgePending:
		return "pending"
	case PurgeDone:
		return "done"
	default:
		return fmt.Sprintf("PurgeState(%d)", int(p))
	}
}

// MarshalText renders the state as its name
func (p PurgeState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is everything the reconciliation loop mutates. It is owned by a
// single goroutine; other goroutines reach it through Engine.Do.
type State struct {
	Registry *registry.Registry
	Policies *policy.Store
	Purge    PurgeState
}

// NewState bundles a registry and a policy store.
func NewState(reg *registry.Registry, store *policy.Store) *State {
	return &State{
		Registry: reg,
		Policies: store,
	}
}

// RequestPurge clears both policy tables and schedules removal of all
// shaping on the next pass.
func (s *State) RequestPurge() {
	s.Policies.PurgeAll()
	if s.Purge != PurgePending {
		log.Infof("Purge requested, state %s -> %s", s.Purge, PurgePending)
	}
	s.Purge = PurgePending
}

// SetInterfacePolicy writes an interface policy and resumes normal
// operation.
func (s *State) SetInterfacePolicy(sel policy.InterfaceSelectors, rate policy.Rate) policy.InterfaceEntry {
	entry := s.Policies.SetInterfacePolicy(sel, rate)
	s.resume()
	return *entry
}

// SetClientPolicy writes a client policy and resumes normal operation.
func (s *State) SetClientPolicy(sel policy.ClientSelectors, rate policy.Rate) policy.ClientEntry {
	entry := s.Policies.SetClientPolicy(sel, rate)
	s.resume()
	return *entry
}

// resume returns to PurgeNone. Shaping may have been removed, so every
// live interface and with it every client is announced again.
func (s *State) resume() {
	if s.Purge == PurgeNone {
		return
	}

	log.Infof("Policy written, state %s -> %s", s.Purge, PurgeNone)
	s.Purge = PurgeNone

	for _, iface := range s.Registry.Interfaces() {
		iface.Applied = false
	}
}

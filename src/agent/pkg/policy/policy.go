// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	log "github.com/sirupsen/logrus"
)

// Rate is a pair of limits in kbit/s. Zero means "not limited" in that
// direction; {0, 0} means no shaping at all.
type Rate struct {
	Down uint32 `json:"down"`
	Up   uint32 `json:"up"`
}

// IsZero reports whether no limit is configured in either direction.
func (r Rate) IsZero() bool {
	return r.Down == 0 && r.Up == 0
}

// InterfaceSelectors select the interfaces a policy applies to.
// An empty Interface matches every interface.
type InterfaceSelectors struct {
	Interface string `json:"interface"`
	SSID      string `json:"ssid,omitempty"` // reserved, not compared yet
}

// ClientSelectors select the clients a policy applies to.
type ClientSelectors struct {
	Interface string   `json:"interface"`
	SSID      string   `json:"ssid,omitempty"` // reserved, not compared yet
	MAC       mac.Addr `json:"mac"`            // reserved, not compared yet
}

// InterfaceEntry is an interface-level policy rule
type InterfaceEntry struct {
	Selectors InterfaceSelectors `json:"selectors"`
	Rate      Rate               `json:"rate"`
}

// ClientEntry is a client-level policy rule
type ClientEntry struct {
	Selectors ClientSelectors `json:"selectors"`
	Rate      Rate            `json:"rate"`
}

// Store holds the ordered interface and client policy tables.
type Store struct {
	interfaces []*InterfaceEntry
	clients    []*ClientEntry
	storage    Storage
}

// NewStore creates a policy store without persistence
func NewStore() *Store {
	return &Store{}
}

// NewStoreWithStorage creates a policy store that mirrors every write
// into storage.
func NewStoreWithStorage(storage Storage) *Store {
	return &Store{storage: storage}
}

// GetInterfacePolicy returns the entry matching sel. An exact interface
// match wins; otherwise the last wildcard entry seen is returned. When
// nothing matches and create is set, a new entry is appended and created
// is reported as true. A nil entry means not found.
func (s *Store) GetInterfacePolicy(sel InterfaceSelectors, create bool) (entry *InterfaceEntry, created bool) {
	var wildcard *InterfaceEntry

	for _, e := range s.interfaces {
		// Only the interface selector is compared for now
		if e.Selectors.Interface == sel.Interface {
			return e, false
		}
		if e.Selectors.Interface == "" {
			wildcard = e
		}
	}

	if wildcard != nil {
		return wildcard, false
	}

	if !create {
		return nil, false
	}

	entry = &InterfaceEntry{Selectors: sel}
	s.interfaces = append(s.interfaces, entry)
	return entry, true
}

// GetClientPolicy applies the GetInterfacePolicy resolution rule to the
// client table.
func (s *Store) GetClientPolicy(sel ClientSelectors, create bool) (entry *ClientEntry, created bool) {
	var wildcard *ClientEntry

	for _, e := range s.clients {
		// Only the interface selector is compared for now
		if e.Selectors.Interface == sel.Interface {
			return e, false
		}
		if e.Selectors.Interface == "" {
			wildcard = e
		}
	}

	if wildcard != nil {
		return wildcard, false
	}

	if !create {
		return nil, false
	}

	entry = &ClientEntry{Selectors: sel}
	s.clients = append(s.clients, entry)
	return entry, true
}

// SetInterfacePolicy writes rate to the entry whose selector tuple equals
// sel, creating it if needed. Wildcard entries are never overwritten by a
// write for a specific interface.
func (s *Store) SetInterfacePolicy(sel InterfaceSelectors, rate Rate) *InterfaceEntry {
	var entry *InterfaceEntry
	for _, e := range s.interfaces {
		if e.Selectors.Interface == sel.Interface {
			entry = e
			break
		}
	}

	if entry == nil {
		entry = &InterfaceEntry{Selectors: sel}
		s.interfaces = append(s.interfaces, entry)
		log.Infof("Interface policy created: interface=%q", sel.Interface)
	}
	entry.Rate = rate

	if s.storage != nil {
		if err := s.storage.SaveInterfacePolicy(entry); err != nil {
			log.Warnf("Failed to persist interface policy interface=%q: %v", sel.Interface, err)
		}
	}

	return entry
}

// SetClientPolicy is the client table counterpart of SetInterfacePolicy.
func (s *Store) SetClientPolicy(sel ClientSelectors, rate Rate) *ClientEntry {
	var entry *ClientEntry
	for _, e := range s.clients {
		if e.Selectors.Interface == sel.Interface {
			entry = e
			break
		}
	}

	if entry == nil {
		entry = &ClientEntry{Selectors: sel}
		s.clients = append(s.clients, entry)
		log.Infof("Client policy created: interface=%q", sel.Interface)
	}
	entry.Rate = rate

	if s.storage != nil {
		if err := s.storage.SaveClientPolicy(entry); err != nil {
			log.Warnf("Failed to persist client policy interface=%q: %v", sel.Interface, err)
		}
	}

	return entry
}

// ResolveInterface returns the rate an interface named name should
// receive, or the zero rate if no entry matches.
func (s *Store) ResolveInterface(name string) Rate {
	entry, _ := s.GetInterfacePolicy(InterfaceSelectors{Interface: name}, false)
	if entry == nil {
		return Rate{}
	}
	return entry.Rate
}

// ResolveClient returns the rate a client attached to the interface named
// name should receive. The client address is not used for matching.
func (s *Store) ResolveClient(name string) Rate {
	entry, _ := s.GetClientPolicy(ClientSelectors{Interface: name}, false)
	if entry == nil {
		return Rate{}
	}
	return entry.Rate
}

// InterfacePolicies returns a copy of the interface table in insertion order
func (s *Store) InterfacePolicies() []InterfaceEntry {
	out := make([]InterfaceEntry, 0, len(s.interfaces))
	for _, e := range s.interfaces {
		out = append(out, *e)
	}
	return out
}

// ClientPolicies returns a copy of the client table in insertion order
func (s *Store) ClientPolicies() []ClientEntry {
	out := make([]ClientEntry, 0, len(s.clients))
	for _, e := range s.clients {
		out = append(out, *e)
	}
	return out
}

// PurgeAll removes every interface and client entry.
func (s *Store) PurgeAll() {
	log.Infof("Purging %d interface and %d client policies", len(s.interfaces), len(s.clients))

	s.interfaces = nil
	s.clients = nil

	if s.storage != nil {
		if err := s.storage.ClearAll(); err != nil {
			log.Warnf("Failed to clear persisted policies: %v", err)
		}
	}
}

// LoadPersisted restores both tables from the configured storage,
// replacing whatever is held in memory.
func (s *Store) LoadPersisted() error {
	if s.storage == nil {
		return errNoStorage
	}

	interfaces, clients, err := s.storage.LoadPolicies()
	if err != nil {
		return err
	}

	s.interfaces = s.interfaces[:0]
	for i := range interfaces {
		s.interfaces = append(s.interfaces, &interfaces[i])
	}
	s.clients = s.clients[:0]
	for i := range clients {
		s.clients = append(s.clients, &clients[i])
	}

	log.Infof("Restored %d interface and %d client policies from storage", len(interfaces), len(clients))
	return nil
}

// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package registry tracks the live wireless interfaces reported by the
// membership bus and, per interface, a fixed-capacity arena of client
// slots.
//
// The registry is not thread-safe; it is owned by the reconciler's event
// loop.
package registry

import (
	"errors"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultClientCapacity is the number of client slots per interface
	DefaultClientCapacity = 256

	// DefaultMissingThreshold is the number of consecutive polls an
	// interface may be absent before it is removed
	DefaultMissingThreshold = 3
)

// ErrNoFreeSlot is returned when a client cannot be allocated because
// every slot of its interface is occupied.
var ErrNoFreeSlot = errors.New("no free client slot")

// Observation is one interface reported by the bus during a poll.
type Observation struct {
	Name      string
	SessionID uint32
}

// Registry owns the set of live interfaces.
type Registry struct {
	capacity         int
	missingThreshold int

	// insertion ordered, names are unique
	interfaces []*Interface
}

// Option configures a Registry
type Option func(*Registry)

// WithClientCapacity sets the number of client slots per interface.
func WithClientCapacity(n int) Option {
	return func(r *Registry) {
		r.capacity = n
	}
}

// WithMissingThreshold sets how many polls an interface may be missed.
func WithMissingThreshold(n int) Option {
	return func(r *Registry) {
		r.missingThreshold = n
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		capacity:         DefaultClientCapacity,
		missingThreshold: DefaultMissingThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InterfaceChanges summarizes what RefreshInterfaces did.
type InterfaceChanges struct {
	Created   []string
	Recreated []string
	Expired   []string
}

// RefreshInterfaces ingests the interfaces observed in one poll. Known
// interfaces that were not observed have their missing counter bumped and
// are removed once it reaches the threshold. Observed interfaces are
// created if unknown and reset if their session id changed.
func (r *Registry) RefreshInterfaces(observed []Observation) InterfaceChanges {
	var changes InterfaceChanges

	seen := make(map[string]struct{}, len(observed))
	for _, o := range observed {
		seen[o.Name] = struct{}{}
	}

	live := r.interfaces[:0]
	for _, iface := range r.interfaces {
		if _, ok := seen[iface.Name]; !ok {
			iface.Missing++
			if iface.Missing >= r.missingThreshold {
				log.Infof("Interface %s missing, removing", iface.Name)
				changes.Expired = append(changes.Expired, iface.Name)
				continue
			}
		}
		live = append(live, iface)
	}
	// drop references held by the tail of the backing array
	for i := len(live); i < len(r.interfaces); i++ {
		r.interfaces[i] = nil
	}
	r.interfaces = live

	for _, o := range observed {
		iface := r.Lookup(o.Name)

		switch {
		case iface == nil:
			log.Infof("New interface %s found", o.Name)
			iface = newInterface(o.Name, r.capacity)
			r.interfaces = append(r.interfaces, iface)
			changes.Created = append(changes.Created, o.Name)

		case iface.SessionID != o.SessionID:
			log.Infof("Interface %s changed ID from %d to %d", iface.Name, iface.SessionID, o.SessionID)
			iface.reset()
			changes.Recreated = append(changes.Recreated, o.Name)
		}

		iface.SessionID = o.SessionID
		iface.Missing = 0
	}

	return changes
}

// Lookup returns the live interface called name, or nil.
func (r *Registry) Lookup(name string) *Interface {
	for _, iface := range r.interfaces {
		if iface.Name == name {
			return iface
		}
	}
	return nil
}

// Interfaces returns the live interfaces in the order they were first seen.
// The slice is shared with the registry and must not be modified.
func (r *Registry) Interfaces() []*Interface {
	return r.interfaces
}

// ClientCount returns the number of occupied client slots across all
// interfaces.
func (r *Registry) ClientCount() int {
	n := 0
	for _, iface := range r.interfaces {
		n += iface.ClientCount()
	}
	return n
}

// Capacity returns the number of client slots per interface.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Interface is a live wireless interface.
type Interface struct {
	Name      string
	SessionID uint32

	Rate    policy.Rate
	Applied bool

	Missing int

	// RequestPending is set while a client enumeration for this interface
	// is in flight.
	RequestPending bool

	slots []Client
}

func newInterface(name string, capacity int) *Interface {
	iface := &Interface{
		Name:  name,
		slots: make([]Client, capacity),
	}
	for i := range iface.slots {
		iface.slots[i].Slot = i
	}
	return iface
}

// reset discards all state derived from the previous bus session.
func (i *Interface) reset() {
	i.Rate = policy.Rate{}
	i.Applied = false
	i.RequestPending = false
	for s := range i.slots {
		i.slots[s] = Client{Slot: s}
	}
}

// Client is one occupied or empty slot of an interface.
type Client struct {
	Slot    int
	Address mac.Addr

	Rate    policy.Rate
	Applied bool

	connected bool
}

// InUse reports whether the slot holds a client.
func (c *Client) InUse() bool {
	return !c.Address.IsZero()
}

// Slots returns the full slot arena, occupied or not.
func (i *Interface) Slots() []Client {
	return i.slots
}

// Clients returns pointers to the occupied slots in slot order.
func (i *Interface) Clients() []*Client {
	var out []*Client
	for s := range i.slots {
		if i.slots[s].InUse() {
			out = append(out, &i.slots[s])
		}
	}
	return out
}

// ClientCount returns the number of occupied slots.
func (i *Interface) ClientCount() int {
	n := 0
	for s := range i.slots {
		if i.slots[s].InUse() {
			n++
		}
	}
	return n
}

// Client returns the slot holding addr, or nil.
func (i *Interface) Client(addr mac.Addr) *Client {
	if addr.IsZero() {
		return nil
	}
	for s := range i.slots {
		if i.slots[s].Address == addr {
			return &i.slots[s]
		}
	}
	return nil
}

// getClient finds addr or, if allocate is set, claims the first empty
// slot for it. allocated reports whether a new slot was claimed.
func (i *Interface) getClient(addr mac.Addr, allocate bool) (client *Client, allocated bool, err error) {
	var free *Client

	for s := range i.slots {
		c := &i.slots[s]
		if c.Address == addr {
			return c, false, nil
		}
		if free == nil && !c.InUse() {
			free = c
		}
	}

	if !allocate {
		return nil, false, nil
	}
	if free == nil {
		return nil, false, ErrNoFreeSlot
	}

	*free = Client{Slot: free.Slot, Address: addr}
	return free, true, nil
}

// ClientChanges summarizes what RefreshClients did.
type ClientChanges struct {
	Allocated []mac.Addr
	Freed     []mac.Addr
	Dropped   []mac.Addr
}

// RefreshClients replaces the membership of the interface with observed.
// Unknown addresses are allocated into the first empty slot with Applied
// cleared. Slots whose address was not observed are zeroed. Addresses
// that do not fit are dropped for this pass. Zero addresses are ignored.
func (i *Interface) RefreshClients(observed []mac.Addr) ClientChanges {
	var changes ClientChanges

	for s := range i.slots {
		i.slots[s].connected = false
	}

	for _, addr := range observed {
		if addr.IsZero() {
			log.Errorf("Ignoring zero MAC address on interface %s", i.Name)
			continue
		}

		client, allocated, err := i.getClient(addr, true)
		if err != nil {
			log.Errorf("Failed to get client %s on interface %s: %v", addr, i.Name, err)
			changes.Dropped = append(changes.Dropped, addr)
			continue
		}

		if allocated {
			log.Debugf("Allocating new client %s on interface %s slot %d", addr, i.Name, client.Slot)
			client.Applied = false
			changes.Allocated = append(changes.Allocated, addr)
		}

		client.connected = true
	}

	for s := range i.slots {
		c := &i.slots[s]
		if c.connected || !c.InUse() {
			continue
		}
		log.Debugf("Client %s left interface %s", c.Address, i.Name)
		changes.Freed = append(changes.Freed, c.Address)
		*c = Client{Slot: s}
	}

	return changes
}

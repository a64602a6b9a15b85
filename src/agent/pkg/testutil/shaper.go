// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
)

// Shaper command names recorded by RecordingShaper
const (
	CmdInterfaceSet    = "interface_set"
	CmdInterfaceRemove = "interface_remove"
	CmdClientSet       = "client_set"
	CmdClientRemove    = "client_remove"
)

// ShaperCall is one recorded backend command
type ShaperCall struct {
	Command   string
	Interface string
	Handle    int
	Address   mac.Addr
	Down      uint32
	Up        uint32
}

func (c ShaperCall) String() string {
	switch c.Command {
	case CmdInterfaceSet:
		return fmt.Sprintf("%s %s %d %d", c.Command, c.Interface, c.Down, c.Up)
	case CmdInterfaceRemove:
		return fmt.Sprintf("%s %s", c.Command, c.Interface)
	case CmdClientSet:
		return fmt.Sprintf("%s %d %s %s %d %d", c.Command, c.Handle, c.Interface, c.Address, c.Down, c.Up)
	default:
		return fmt.Sprintf("%s %d %s", c.Command, c.Handle, c.Interface)
	}
}

// RecordingShaper records every command it receives. Err, when set, is
// returned from every call after recording it.
type RecordingShaper struct {
	mu    sync.Mutex
	calls []ShaperCall

	Err error
}

var _ dataplane.Shaper = (*RecordingShaper)(nil)

func (r *RecordingShaper) record(call ShaperCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.Err
}

func (r *RecordingShaper) SetInterfaceRate(ctx context.Context, iface string, down, up uint32) error {
	return r.record(ShaperCall{Command: CmdInterfaceSet, Interface: iface, Down: down, Up: up})
}

func (r *RecordingShaper) RemoveInterface(ctx context.Context, iface string) error {
	return r.record(ShaperCall{Command: CmdInterfaceRemove, Interface: iface})
}

func (r *RecordingShaper) SetClientRate(ctx context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error {
	return r.record(ShaperCall{Command: CmdClientSet, Interface: iface, Handle: handle, Address: addr, Down: down, Up: up})
}

func (r *RecordingShaper) RemoveClient(ctx context.Context, handle int, iface string) error {
	return r.record(ShaperCall{Command: CmdClientRemove, Interface: iface, Handle: handle})
}

// Calls returns a copy of the recorded commands
func (r *RecordingShaper) Calls() []ShaperCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ShaperCall(nil), r.calls...)
}

// Take returns the recorded commands and forgets them
func (r *RecordingShaper) Take() []ShaperCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

// Strings renders the recorded commands, for compact assertions
func (r *RecordingShaper) Strings() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.String())
	}
	return out
}

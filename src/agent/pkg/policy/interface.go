// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"context"
	"errors"
)

var errNoStorage = errors.New("no storage configured")

// Manager defines the policy operations offered to management callers.
// Implementations serialize access with the reconciliation loop.
type Manager interface {
	SetInterfacePolicy(ctx context.Context, sel InterfaceSelectors, rate Rate) (InterfaceEntry, error)
	SetClientPolicy(ctx context.Context, sel ClientSelectors, rate Rate) (ClientEntry, error)

	// InterfacePolicy resolves the entry for the named interface; the
	// boolean is false when no entry matches.
	InterfacePolicy(ctx context.Context, name string) (InterfaceEntry, bool, error)
	ClientPolicy(ctx context.Context, name string) (ClientEntry, bool, error)

	ListInterfacePolicies(ctx context.Context) ([]InterfaceEntry, error)
	ListClientPolicies(ctx context.Context) ([]ClientEntry, error)

	// Purge clears both tables and schedules removal of all shaping.
	Purge(ctx context.Context) error
}

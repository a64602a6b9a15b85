// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package reconciler

import (
	"context"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	log "github.com/sirupsen/logrus"
)

// ceiling substitutes Unlimited for a zero limit in either direction.
func ceiling(rate policy.Rate) (down, up uint32) {
	down, up = rate.Down, rate.Up
	if down == 0 {
		down = Unlimited
	}
	if up == 0 {
		up = Unlimited
	}
	return down, up
}

// reconcile resolves policy for every live entity and, depending on the
// purge state, announces what changed.
func (e *Engine) reconcile(ctx context.Context) {
	e.resolve()

	switch e.state.Purge {
	case PurgePending:
		e.purge(ctx)
	case PurgeDone:
		log.Debug("Purge done, not applying rates")
	default:
		e.apply(ctx)
	}
}

// resolve stores the policy result of every entity and clears Applied
// where it changed.
func (e *Engine) resolve() {
	store := e.state.Policies

	for _, iface := range e.state.Registry.Interfaces() {
		rate := store.ResolveInterface(iface.Name)
		if rate != iface.Rate {
			iface.Rate = rate
			iface.Applied = false
			log.Infof("Update rate-limits for interface %s down=%d up=%d", iface.Name, rate.Down, rate.Up)
		}

		// client entries are keyed by interface only
		clientRate := store.ResolveClient(iface.Name)
		for _, client := range iface.Clients() {
			if clientRate != client.Rate {
				client.Rate = clientRate
				client.Applied = false
				log.Infof("Update rate-limits for client %s down=%d up=%d", client.Address, clientRate.Down, clientRate.Up)
			}
		}
	}
}

// purge removes the shaping of every interface and marks everything
// applied without announcing rates.
func (e *Engine) purge(ctx context.Context) {
	for _, iface := range e.state.Registry.Interfaces() {
		log.Infof("Removing rate-limits from interface %s", iface.Name)
		err := e.shaper.RemoveInterface(ctx, iface.Name)
		e.metrics.command("interface_remove", err)
		if err != nil {
			log.Errorf("Failed to remove rate-limits from interface %s: %v", iface.Name, err)
		}

		iface.Applied = true
		for _, client := range iface.Clients() {
			client.Applied = true
		}
	}

	log.Infof("Purge state %s -> %s", PurgePending, PurgeDone)
	e.state.Purge = PurgeDone
}

func (e *Engine) apply(ctx context.Context) {
	for _, iface := range e.state.Registry.Interfaces() {
		// announcing the interface rebuilds its shaping root, so its
		// clients have to follow
		announced := !iface.Applied
		if announced {
			e.applyInterface(ctx, iface)
		}

		for _, client := range iface.Clients() {
			if !announced && client.Applied {
				continue
			}
			e.applyClient(ctx, iface, client)
		}
	}
}

func (e *Engine) applyInterface(ctx context.Context, iface *registry.Interface) {
	log.Infof("Applying rate for interface %s", iface.Name)

	down, up := ceiling(iface.Rate)
	err := e.shaper.SetInterfaceRate(ctx, iface.Name, down, up)
	e.metrics.command("interface_set", err)
	if err != nil {
		log.Errorf("Failed to apply rate for interface %s: %v", iface.Name, err)
	}

	// not retried, the next change announces again
	iface.Applied = true
}

func (e *Engine) applyClient(ctx context.Context, iface *registry.Interface, client *registry.Client) {
	handle := client.Slot + e.cfg.HandleOffset

	var err error
	if client.Rate.IsZero() {
		log.Infof("Removing rate for client %s (handle %d) on %s", client.Address, handle, iface.Name)
		err = e.shaper.RemoveClient(ctx, handle, iface.Name)
		e.metrics.command("client_remove", err)
	} else {
		log.Infof("Applying rate for client %s (handle %d) on %s", client.Address, handle, iface.Name)
		down, up := ceiling(client.Rate)
		err = e.shaper.SetClientRate(ctx, handle, iface.Name, client.Address, down, up)
		e.metrics.command("client_set", err)
	}
	if err != nil {
		log.Errorf("Failed to apply rate for client %s on %s: %v", client.Address, iface.Name, err)
	}

	client.Applied = true
}

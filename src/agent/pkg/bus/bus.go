// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package bus enumerates wireless interfaces and their associated clients
// through the system message bus (ubus on OpenWrt, where every hostapd
// BSS registers an object named "hostapd.<ifname>").
package bus

import (
	"context"
	"errors"
	"strings"
)

// ErrMalformedPayload is returned when a reply lacks the expected fields.
var ErrMalformedPayload = errors.New("malformed bus payload")

// Object is a bus object together with its session id. The id changes
// whenever the object is re-registered.
type Object struct {
	Path string
	ID   uint32
}

// Name returns the path with prefix stripped.
func (o Object) Name(prefix string) string {
	return strings.TrimPrefix(o.Path, prefix)
}

// Bus is the membership source used by the reconciler.
type Bus interface {
	// Ping verifies the bus is reachable.
	Ping(ctx context.Context) error

	// ListObjects returns all objects whose path starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]Object, error)

	// GetClients returns the MAC address strings of the clients
	// associated with obj. Only the keys of the reply are used.
	GetClients(ctx context.Context, obj Object) ([]string, error)
}

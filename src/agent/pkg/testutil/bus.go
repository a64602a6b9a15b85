// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/bus"
)

// FakeBus is an in-memory bus whose membership is set by the test.
// It is safe for concurrent use.
type FakeBus struct {
	mu sync.Mutex

	objects map[string]uint32   // path -> session id
	clients map[string][]string // path -> client addresses
	errors  map[string]error    // path -> GetClients error

	ListErr error
	PingErr error

	// Block, when set, holds GetClients until it is closed or the
	// context is done.
	Block chan struct{}

	listCalls   int
	clientCalls int
}

// NewFakeBus creates an empty bus
func NewFakeBus() *FakeBus {
	return &FakeBus{
		objects: make(map[string]uint32),
		clients: make(map[string][]string),
		errors:  make(map[string]error),
	}
}

var _ bus.Bus = (*FakeBus)(nil)

// SetObject registers or re-registers path with session id
func (f *FakeBus) SetObject(path string, id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = id
}

// RemoveObject unregisters path
func (f *FakeBus) RemoveObject(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	delete(f.clients, path)
	delete(f.errors, path)
}

// SetClients replaces the clients reported for path
func (f *FakeBus) SetClients(path string, addrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[path] = append([]string(nil), addrs...)
}

// SetClientsError makes GetClients on path fail with err. A nil err
// clears it.
func (f *FakeBus) SetClientsError(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errors, path)
		return
	}
	f.errors[path] = err
}

// SetListError makes ListObjects fail with err
func (f *FakeBus) SetListError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListErr = err
}

// Ping returns PingErr
func (f *FakeBus) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

// ListObjects returns the registered objects under prefix sorted by path
func (f *FakeBus) ListObjects(ctx context.Context, prefix string) ([]bus.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var objects []bus.Object
	for path, id := range f.objects {
		if strings.HasPrefix(path, prefix) {
			objects = append(objects, bus.Object{Path: path, ID: id})
		}
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Path < objects[j].Path
	})
	return objects, nil
}

// GetClients returns the clients set for obj. A session id that no longer
// matches behaves like an unknown object.
func (f *FakeBus) GetClients(ctx context.Context, obj bus.Object) ([]string, error) {
	f.mu.Lock()
	f.clientCalls++
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.objects[obj.Path]; !ok || id != obj.ID {
		return nil, bus.ErrMalformedPayload
	}
	if err := f.errors[obj.Path]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.clients[obj.Path]...), nil
}

// ListCalls returns how often ListObjects was called
func (f *FakeBus) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// ClientCalls returns how often GetClients was called
func (f *FakeBus) ClientCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clientCalls
}

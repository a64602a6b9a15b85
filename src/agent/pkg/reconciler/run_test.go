// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func hasCall(shaper *testutil.RecordingShaper, want string) func() bool {
	return func() bool {
		for _, s := range shaper.Strings() {
			if s == want {
				return true
			}
		}
		return false
	}
}

func TestEngine_DoWaitsForRun(t *testing.T) {
	e := New(DefaultConfig(), testutil.NewFakeBus(), &testutil.RecordingShaper{}, policy.NewStore(), registry.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.Purge(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = e.ListInterfacePolicies(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_WritesBeforeRunAreApplied(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	e := New(cfg, testutil.NewFakeBus(), &testutil.RecordingShaper{}, policy.NewStore(), registry.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	written := make(chan error, 1)
	go func() {
		_, err := e.SetInterfacePolicy(ctx, policy.InterfaceSelectors{Interface: "wlan0"}, policy.Rate{Down: 1000, Up: 500})
		written <- err
	}()

	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("write was not served")
	}

	entry, found, err := e.InterfacePolicy(ctx, "wlan0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, policy.Rate{Down: 1000, Up: 500}, entry.Rate)

	cancel()
	require.NoError(t, <-done)
}

func TestEngine_CanceledWriteNotApplied(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	e := New(cfg, testutil.NewFakeBus(), &testutil.RecordingShaper{}, policy.NewStore(), registry.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	canceled, cancelWrite := context.WithCancel(context.Background())
	cancelWrite()
	for i := 0; i < 50; i++ {
		_, err := e.SetInterfacePolicy(canceled, policy.InterfaceSelectors{Interface: "wlan0"}, policy.Rate{Down: 1, Up: 1})
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, e.Purge(canceled), context.Canceled)
	}

	status, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.InterfacePolicies)
	assert.Equal(t, PurgeNone, status.Purge)

	cancel()
	require.NoError(t, <-done)
}

func TestEngine_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	fb := testutil.NewFakeBus()
	fb.SetObject(wlan0, 1)
	fb.SetClients(wlan0, sta1)
	sh := &testutil.RecordingShaper{}

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	e := New(cfg, fb, sh, policy.NewStore(), registry.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := e.Status(context.Background())
		return err == nil
	}, time.Second, time.Millisecond)

	// management calls
	entry, err := e.SetInterfacePolicy(ctx, policy.InterfaceSelectors{Interface: "wlan0"}, policy.Rate{Down: 20480, Up: 10240})
	require.NoError(t, err)
	assert.Equal(t, "wlan0", entry.Selectors.Interface)

	_, err = e.SetClientPolicy(ctx, policy.ClientSelectors{}, policy.Rate{Down: 8192, Up: 3072})
	require.NoError(t, err)

	require.Eventually(t, hasCall(sh, "interface_set wlan0 20480 10240"), 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, hasCall(sh, "client_set 10 wlan0 "+sta1+" 8192 3072"), 2*time.Second, 5*time.Millisecond)

	got, found, err := e.InterfacePolicy(ctx, "wlan0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, policy.Rate{Down: 20480, Up: 10240}, got.Rate)

	_, found, err = e.InterfacePolicy(ctx, "wlan9")
	require.NoError(t, err)
	assert.False(t, found)

	clientEntry, found, err := e.ClientPolicy(ctx, "wlan9")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "", clientEntry.Selectors.Interface)

	ifaces, err := e.Interfaces(ctx)
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	assert.Equal(t, "wlan0", ifaces[0].Name)
	assert.True(t, ifaces[0].Applied)
	assert.Equal(t, 1, ifaces[0].Clients)

	clients, err := e.Clients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, sta1, clients[0].Address.String())
	assert.Equal(t, 10, clients[0].Handle)
	assert.Equal(t, "wlan0", clients[0].Interface)

	// purge
	require.NoError(t, e.Purge(ctx))
	require.Eventually(t, func() bool {
		status, err := e.Status(ctx)
		return err == nil && status.Purge == PurgeDone
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, hasCall(sh, "interface_remove wlan0")())

	status, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.InterfacePolicies)
	assert.Equal(t, 0, status.ClientPolicies)
	assert.Equal(t, 1, status.Interfaces)
	assert.Equal(t, 1, status.Clients)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.ErrorIs(t, e.Purge(context.Background()), ErrNotRunning)
	assert.Error(t, e.Run(context.Background()))
}

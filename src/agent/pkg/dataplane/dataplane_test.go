// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockShaper is a mock implementation of Shaper for testing
type MockShaper struct {
	mock.Mock
}

func (m *MockShaper) SetInterfaceRate(ctx context.Context, iface string, down, up uint32) error {
	return m.Called(iface, down, up).Error(0)
}

func (m *MockShaper) RemoveInterface(ctx context.Context, iface string) error {
	return m.Called(iface).Error(0)
}

func (m *MockShaper) SetClientRate(ctx context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error {
	return m.Called(handle, iface, addr, down, up).Error(0)
}

func (m *MockShaper) RemoveClient(ctx context.Context, handle int, iface string) error {
	return m.Called(handle, iface).Error(0)
}

func TestScriptShaper_Commands(t *testing.T) {
	var got [][]string

	s := NewScriptShaper("")
	s.run = func(ctx context.Context, name string, args ...string) error {
		got = append(got, append([]string{name}, args...))
		return nil
	}

	ctx := context.Background()
	addr := mac.Addr{0xaa, 0xbb, 0xcc, 0x00, 0x11, 0x22}

	require.NoError(t, s.SetInterfaceRate(ctx, "wlan0", 20480, 10240))
	require.NoError(t, s.RemoveInterface(ctx, "wlan0"))
	require.NoError(t, s.SetClientRate(ctx, 10, "wlan0", addr, 8192, 3072))
	require.NoError(t, s.RemoveClient(ctx, 12, "wlan1"))

	assert.Equal(t, [][]string{
		{"sh", "/lib/wireless-rate-limiter/htb-netdev.sh", "add", "wlan0", "20480kbit", "10240kbit"},
		{"sh", "/lib/wireless-rate-limiter/htb-netdev.sh", "remove", "wlan0"},
		{"sh", "/lib/wireless-rate-limiter/htb-client.sh", "add", "10", "wlan0", "aa:bb:cc:00:11:22", "8192kbit", "3072kbit"},
		{"sh", "/lib/wireless-rate-limiter/htb-client.sh", "remove", "12", "wlan1"},
	}, got)
}

func TestScriptShaper_CustomDirAndError(t *testing.T) {
	s := NewScriptShaper("/opt/wrl")
	s.run = func(ctx context.Context, name string, args ...string) error {
		assert.Equal(t, "/opt/wrl/htb-netdev.sh", args[0])
		return errors.New("exit status 1")
	}

	assert.Error(t, s.RemoveInterface(context.Background(), "wlan0"))
}

func TestDataPlane_Statistics(t *testing.T) {
	shaper := new(MockShaper)
	shaper.On("SetInterfaceRate", "wlan0", uint32(1), uint32(2)).Return(nil)
	shaper.On("RemoveInterface", "wlan0").Return(errors.New("boom"))
	shaper.On("SetClientRate", 10, "wlan0", mock.Anything, uint32(3), uint32(4)).Return(nil)
	shaper.On("RemoveClient", 11, "wlan0").Return(nil)

	dp := New(shaper)
	ctx := context.Background()

	assert.NoError(t, dp.SetInterfaceRate(ctx, "wlan0", 1, 2))
	assert.Error(t, dp.RemoveInterface(ctx, "wlan0"))
	assert.NoError(t, dp.SetClientRate(ctx, 10, "wlan0", mac.Addr{1}, 3, 4))
	assert.NoError(t, dp.RemoveClient(ctx, 11, "wlan0"))

	stats := dp.GetStatistics()
	assert.Equal(t, Statistics{
		InterfaceSets:    1,
		InterfaceRemoves: 1,
		ClientSets:       1,
		ClientRemoves:    1,
		Failures:         1,
	}, stats)
	assert.Equal(t, uint64(4), stats.Total())

	shaper.AssertExpectations(t)
}

func TestNewShaper(t *testing.T) {
	s, err := NewShaper(BackendScript, "")
	require.NoError(t, err)
	assert.IsType(t, &ScriptShaper{}, s)

	s, err = NewShaper(BackendNetlink, "")
	require.NoError(t, err)
	assert.IsType(t, &NetlinkShaper{}, s)

	s, err = NewShaper(BackendDryRun, "")
	require.NoError(t, err)
	assert.NoError(t, s.SetInterfaceRate(context.Background(), "wlan0", 1, 1))

	_, err = NewShaper("tc-bpf", "")
	assert.Error(t, err)
}

func TestRateConversions(t *testing.T) {
	assert.Equal(t, uint64(8192000), kbitToBits(8192))
	assert.Equal(t, uint32(1024000), kbitToBytes32(8192))
	assert.Equal(t, uint32(math.MaxUint32), kbitToBytes32(1<<30))

	assert.Equal(t, uint32(minPoliceBurst), policeBurst(1000))
	assert.Equal(t, uint32(102400), policeBurst(1024000))
}

func TestMacKeys(t *testing.T) {
	addr := mac.Addr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}

	keys := macKeys(addr, -14)
	require.Len(t, keys, 2)
	assert.Equal(t, uint32(0x02112233), keys[0].Val)
	assert.Equal(t, uint32(0xffffffff), keys[0].Mask)
	assert.Equal(t, int32(-14), keys[0].Off)
	assert.Equal(t, uint32(0x44550000), keys[1].Val)
	assert.Equal(t, uint32(0xffff0000), keys[1].Mask)
	assert.Equal(t, int32(-10), keys[1].Off)
}

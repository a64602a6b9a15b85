// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"context"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/stretchr/testify/mock"
)

// MockPolicyManager is a mock implementation of policy.Manager for testing
type MockPolicyManager struct {
	mock.Mock
}

func (m *MockPolicyManager) SetInterfacePolicy(ctx context.Context, sel policy.InterfaceSelectors, rate policy.Rate) (policy.InterfaceEntry, error) {
	args := m.Called(sel, rate)
	return args.Get(0).(policy.InterfaceEntry), args.Error(1)
}

func (m *MockPolicyManager) SetClientPolicy(ctx context.Context, sel policy.ClientSelectors, rate policy.Rate) (policy.ClientEntry, error) {
	args := m.Called(sel, rate)
	return args.Get(0).(policy.ClientEntry), args.Error(1)
}

func (m *MockPolicyManager) InterfacePolicy(ctx context.Context, name string) (policy.InterfaceEntry, bool, error) {
	args := m.Called(name)
	return args.Get(0).(policy.InterfaceEntry), args.Bool(1), args.Error(2)
}

func (m *MockPolicyManager) ClientPolicy(ctx context.Context, name string) (policy.ClientEntry, bool, error) {
	args := m.Called(name)
	return args.Get(0).(policy.ClientEntry), args.Bool(1), args.Error(2)
}

func (m *MockPolicyManager) ListInterfacePolicies(ctx context.Context) ([]policy.InterfaceEntry, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]policy.InterfaceEntry), args.Error(1)
}

func (m *MockPolicyManager) ListClientPolicies(ctx context.Context) ([]policy.ClientEntry, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]policy.ClientEntry), args.Error(1)
}

func (m *MockPolicyManager) Purge(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// MockStateReader is a mock implementation of StateReader for testing
type MockStateReader struct {
	mock.Mock
}

func (m *MockStateReader) Status(ctx context.Context) (reconciler.Status, error) {
	args := m.Called()
	return args.Get(0).(reconciler.Status), args.Error(1)
}

func (m *MockStateReader) Interfaces(ctx context.Context) ([]reconciler.InterfaceStatus, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciler.InterfaceStatus), args.Error(1)
}

func (m *MockStateReader) Clients(ctx context.Context) ([]reconciler.ClientStatus, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciler.ClientStatus), args.Error(1)
}

// MockDataPlane is a mock implementation of DataPlaneInterface for testing
type MockDataPlane struct {
	statistics dataplane.Statistics
}

func NewMockDataPlane() *MockDataPlane {
	return &MockDataPlane{
		statistics: dataplane.Statistics{
			InterfaceSets:    4,
			InterfaceRemoves: 1,
			ClientSets:       12,
			ClientRemoves:    3,
			Failures:         2,
		},
	}
}

func (m *MockDataPlane) GetStatistics() dataplane.Statistics {
	return m.statistics
}

func (m *MockDataPlane) SetStatistics(stats dataplane.Statistics) {
	m.statistics = stats
}

var _ policy.Manager = (*MockPolicyManager)(nil)
var _ StateReader = (*MockStateReader)(nil)
var _ dataplane.DataPlaneInterface = (*MockDataPlane)(nil)

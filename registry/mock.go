package registry

import (
	"context"

	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the CertificateRegistry interface
type MockRegistry struct {
	mock.Mock
}

// Initialize mocks the Initialize method
func (m *MockRegistry) Initialize(ctx context.Context, admin interfaces.Identity) error {
	args := m.Called(ctx, admin)
	return args.Error(0)
}

// Mint mocks the Mint method
func (m *MockRegistry) Mint(ctx context.Context, caller, to interfaces.Identity, itemID interfaces.ItemID) error {
	args := m.Called(ctx, caller, to, itemID)
	return args.Error(0)
}

// Burn mocks the Burn method
func (m *MockRegistry) Burn(ctx context.Context, caller interfaces.Identity, itemID interfaces.ItemID) error {
	args := m.Called(ctx, caller, itemID)
	return args.Error(0)
}

// IsValid mocks the IsValid method
func (m *MockRegistry) IsValid(ctx context.Context, itemID interfaces.ItemID) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

// Transfer mocks the Transfer method
func (m *MockRegistry) Transfer(ctx context.Context, caller, to interfaces.Identity, itemID interfaces.ItemID) error {
	args := m.Called(ctx, caller, to, itemID)
	return args.Error(0)
}

// Certificate mocks the Certificate method
func (m *MockRegistry) Certificate(ctx context.Context, itemID interfaces.ItemID) (*interfaces.Certificate, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Certificate), args.Error(1)
}

// Admin mocks the Admin method
func (m *MockRegistry) Admin(ctx context.Context) (interfaces.Identity, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.Identity), args.Error(1)
}

var _ interfaces.CertificateRegistry = (*MockRegistry)(nil)
var _ interfaces.CertificateRegistry = (*Registry)(nil)

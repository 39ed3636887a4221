package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	"github.com/lorrc/support-redistributor/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockSupportRepository is a mock implementation of ports.SupportRepository
type MockSupportRepository struct {
	mock.Mock
}

func NewMockSupportRepository() *MockSupportRepository {
	return &MockSupportRepository{}
}

func (m *MockSupportRepository) ListAssignedTickets(ctx context.Context) ([]*domain.Ticket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockSupportRepository) LastAgentMessage(ctx context.Context, ticketID uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockSupportRepository) OnlineAgents(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockSupportRepository) CountOpenTickets(ctx context.Context, agentID uuid.UUID) (int, error) {
	args := m.Called(ctx, agentID)
	return args.Int(0), args.Error(1)
}

func (m *MockSupportRepository) Reassign(ctx context.Context, params ports.ReassignParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockSupportRepository) AppendSystemMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockSupportRepository) UpdatePresenceCount(ctx context.Context, agentID uuid.UUID, count int) error {
	args := m.Called(ctx, agentID, count)
	return args.Error(0)
}

func (m *MockSupportRepository) TouchPresence(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, agentID, at)
	return args.Error(0)
}

// MockRoleRepository is a mock implementation of ports.RoleRepository
type MockRoleRepository struct {
	mock.Mock
}

func NewMockRoleRepository() *MockRoleRepository {
	return &MockRoleRepository{}
}

func (m *MockRoleRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]domain.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Role), args.Error(1)
}

// MockAuthorizationService is a mock implementation of ports.AuthorizationService
type MockAuthorizationService struct {
	mock.Mock
}

func NewMockAuthorizationService() *MockAuthorizationService {
	return &MockAuthorizationService{}
}

func (m *MockAuthorizationService) RequireSupportAccess(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuthorizationService) GetRoles(ctx context.Context, userID uuid.UUID) ([]domain.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Role), args.Error(1)
}

// MockRedistributionService is a mock implementation of ports.RedistributionService
type MockRedistributionService struct {
	mock.Mock
}

func NewMockRedistributionService() *MockRedistributionService {
	return &MockRedistributionService{}
}

func (m *MockRedistributionService) Redistribute(ctx context.Context, actorID uuid.UUID) (*domain.RedistributionResult, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedistributionResult), args.Error(1)
}

func (m *MockRedistributionService) RunOnce(ctx context.Context) (*domain.RedistributionResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedistributionResult), args.Error(1)
}

// MockRunLocker is a mock implementation of ports.RunLocker
type MockRunLocker struct {
	mock.Mock
}

func NewMockRunLocker() *MockRunLocker {
	return &MockRunLocker{}
}

func (m *MockRunLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	args := m.Called(ctx, key, ttl)
	var unlock func()
	if fn, ok := args.Get(0).(func()); ok {
		unlock = fn
	}
	return unlock, args.Bool(1), args.Error(2)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockEventBroadcaster) SendToUser(userID uuid.UUID, event domain.Event) {
	m.Called(userID, event)
}

// PassthroughTx runs the function without a real transaction.
type PassthroughTx struct{}

func (PassthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockPresenceService is a mock implementation of ports.PresenceService
type MockPresenceService struct {
	mock.Mock
}

func NewMockPresenceService() *MockPresenceService {
	return &MockPresenceService{}
}

func (m *MockPresenceService) Heartbeat(ctx context.Context, agentID uuid.UUID) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}

package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
)

// AuthorizationService defines the port for checking support permissions.
type AuthorizationService interface {
	// RequireSupportAccess returns ErrForbidden unless the user holds a support role.
	RequireSupportAccess(ctx context.Context, userID uuid.UUID) error
	GetRoles(ctx context.Context, userID uuid.UUID) ([]domain.Role, error)
}

// RedistributionService defines the port for the stalled-ticket sweep.
type RedistributionService interface {
	// Redistribute authorizes the caller and runs one sweep.
	Redistribute(ctx context.Context, actorID uuid.UUID) (*domain.RedistributionResult, error)
	// RunOnce runs one sweep on behalf of the system (scheduled trigger).
	RunOnce(ctx context.Context) (*domain.RedistributionResult, error)
}

// PresenceService defines the port for agent heartbeats.
type PresenceService interface {
	Heartbeat(ctx context.Context, agentID uuid.UUID) error
}

// RunLocker guards a run against overlapping invocations.
type RunLocker interface {
	// TryLock attempts to take key for ttl. When acquired is false another
	// holder owns the key and unlock is nil.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// EventBroadcaster defines the port for real-time fan-out.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
	SendToUser(userID uuid.UUID, event domain.Event)
}

// RunRecorder receives the outcome of every sweep.
type RunRecorder interface {
	RecordRun(trigger string, result *domain.RedistributionResult, err error, duration time.Duration)
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time.
type Clock func() time.Time

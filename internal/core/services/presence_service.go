package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// PresenceService records agent heartbeats.
type PresenceService struct {
	repo     ports.SupportRepository
	authzSvc ports.AuthorizationService
	clock    ports.Clock
}

var _ ports.PresenceService = (*PresenceService)(nil)

// NewPresenceService creates a new presence service
func NewPresenceService(repo ports.SupportRepository, authzSvc ports.AuthorizationService, clock ports.Clock) *PresenceService {
	if clock == nil {
		clock = time.Now
	}
	return &PresenceService{
		repo:     repo,
		authzSvc: authzSvc,
		clock:    clock,
	}
}

// Heartbeat marks the agent as online. Only support staff keep presence.
func (s *PresenceService) Heartbeat(ctx context.Context, agentID uuid.UUID) error {
	if agentID == uuid.Nil {
		return apperrors.ErrAgentIDRequired
	}

	if err := s.authzSvc.RequireSupportAccess(ctx, agentID); err != nil {
		return err
	}

	if err := s.repo.TouchPresence(ctx, agentID, s.clock().UTC()); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

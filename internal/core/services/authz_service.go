package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// AuthorizationService implements the role checks for support tooling.
type AuthorizationService struct {
	roleRepo ports.RoleRepository
}

// Ensure implementation matches the interface.
var _ ports.AuthorizationService = (*AuthorizationService)(nil)

// NewAuthorizationService creates a new service for authorization logic.
func NewAuthorizationService(roleRepo ports.RoleRepository) ports.AuthorizationService {
	return &AuthorizationService{
		roleRepo: roleRepo,
	}
}

// RequireSupportAccess checks that the user holds admin, suporte or suporte_gerente.
func (s *AuthorizationService) RequireSupportAccess(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return apperrors.ErrUnauthorized
	}

	roles, err := s.GetRoles(ctx, userID)
	if err != nil {
		// If there's an error fetching roles (e.g., db down), deny access.
		return err
	}

	if !domain.HasSupportAccess(roles) {
		return apperrors.ErrForbidden
	}
	return nil
}

// GetRoles returns all roles for a user.
func (s *AuthorizationService) GetRoles(ctx context.Context, userID uuid.UUID) ([]domain.Role, error) {
	roles, err := s.roleRepo.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	if roles == nil {
		return []domain.Role{}, nil
	}
	return roles, nil
}

package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// RoleRepository handles role lookups.
type RoleRepository struct {
	pool *pgxpool.Pool
}

// Ensure implementation matches the interface.
var _ ports.RoleRepository = (*RoleRepository)(nil)

// NewRoleRepository creates a new repository for role queries.
func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// GetUserRoles fetches all distinct roles held by a user. Role names the
// service does not know map to domain.RoleOther.
func (r *RoleRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]domain.Role, error) {
	query := `
		SELECT DISTINCT role
		FROM user_roles
		WHERE user_id = $1
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, toUUID(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, domain.ParseRole(name))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return roles, nil
}

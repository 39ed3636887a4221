package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// SupportRepository reads and writes support tickets, messages and agent
// presence. Every method joins a transaction carried by ctx.
type SupportRepository struct {
	pool *pgxpool.Pool
}

// Ensure implementation matches the interface.
var _ ports.SupportRepository = (*SupportRepository)(nil)

// NewSupportRepository creates a new support repository.
func NewSupportRepository(pool *pgxpool.Pool) *SupportRepository {
	return &SupportRepository{pool: pool}
}

// ListAssignedTickets returns every ticket in the assigned state, oldest
// update first.
func (r *SupportRepository) ListAssignedTickets(ctx context.Context) ([]*domain.Ticket, error) {
	query := `
		SELECT id, status, assigned_to, updated_at
		FROM support_tickets
		WHERE status = $1
		ORDER BY updated_at, id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, string(domain.StatusAssigned))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		var (
			id         pgtype.UUID
			status     string
			assignedTo pgtype.UUID
			updatedAt  pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &status, &assignedTo, &updatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, &domain.Ticket{
			ID:         id.Bytes,
			Status:     domain.TicketStatus(status),
			AssignedTo: fromNullUUID(assignedTo),
			UpdatedAt:  updatedAt.Time,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tickets, nil
}

// LastAgentMessage returns the newest agent-authored message, or nil when
// no agent ever replied.
func (r *SupportRepository) LastAgentMessage(ctx context.Context, ticketID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, ticket_id, sender_type, sender_id, body, created_at
		FROM support_messages
		WHERE ticket_id = $1 AND sender_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		id, tID, senderID pgtype.UUID
		senderType, body  string
		createdAt         pgtype.Timestamptz
	)
	err := conn(ctx, r.pool).QueryRow(ctx, query, toUUID(ticketID), string(domain.SenderAgent)).
		Scan(&id, &tID, &senderType, &senderID, &body, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.Message{
		ID:         id.Bytes,
		TicketID:   tID.Bytes,
		SenderType: domain.SenderType(senderType),
		SenderID:   fromNullUUID(senderID),
		Body:       body,
		CreatedAt:  createdAt.Time,
	}, nil
}

// OnlineAgents lists agents whose heartbeat is at or after since, most
// recently seen first. The order is the tie break for equal loads.
func (r *SupportRepository) OnlineAgents(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM support_agent_presence
		WHERE last_heartbeat >= $1
		ORDER BY last_heartbeat DESC, user_id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, toTimestamptz(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		agents = append(agents, id.Bytes)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return agents, nil
}

// CountOpenTickets counts the agent's tickets in a load-bearing state.
func (r *SupportRepository) CountOpenTickets(ctx context.Context, agentID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM support_tickets
		WHERE assigned_to = $1 AND status = ANY($2)
	`

	statuses := make([]string, len(domain.OpenLoadStatuses))
	for i, s := range domain.OpenLoadStatuses {
		statuses[i] = string(s)
	}

	var n int64
	if err := conn(ctx, r.pool).QueryRow(ctx, query, toUUID(agentID), statuses).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Reassign hands the ticket to params.To and escalates it, but only while it
// is still assigned to params.From.
func (r *SupportRepository) Reassign(ctx context.Context, params ports.ReassignParams) error {
	query := `
		UPDATE support_tickets
		SET assigned_to = $2, status = $3, updated_at = $4
		WHERE id = $1
		  AND status = $5
		  AND assigned_to IS NOT DISTINCT FROM $6
	`

	db := conn(ctx, r.pool)
	tag, err := db.Exec(ctx, query,
		toUUID(params.TicketID),
		toUUID(params.To),
		string(domain.StatusEscalated),
		toTimestamptz(params.UpdatedAt),
		string(domain.StatusAssigned),
		toNullUUID(params.From),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM support_tickets WHERE id = $1)`,
		toUUID(params.TicketID)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrTicketNotFound
	}
	return apperrors.ErrTicketChanged
}

// AppendSystemMessage inserts msg into the ticket thread.
func (r *SupportRepository) AppendSystemMessage(ctx context.Context, msg *domain.Message) error {
	if msg.SenderType != domain.SenderSystem {
		return fmt.Errorf("append system message: unexpected sender type %q", msg.SenderType)
	}

	query := `
		INSERT INTO support_messages (id, ticket_id, sender_type, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		toUUID(msg.ID),
		toUUID(msg.TicketID),
		string(msg.SenderType),
		toNullUUID(msg.SenderID),
		msg.Body,
		toTimestamptz(msg.CreatedAt),
	)
	return err
}

// UpdatePresenceCount overwrites the agent's cached open ticket count.
// Agents without a presence row are left alone.
func (r *SupportRepository) UpdatePresenceCount(ctx context.Context, agentID uuid.UUID, count int) error {
	query := `
		UPDATE support_agent_presence
		SET active_ticket_count = $2
		WHERE user_id = $1
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query, toUUID(agentID), int32(count))
	return err
}

// TouchPresence records a heartbeat. An older timestamp never moves the
// heartbeat backwards.
func (r *SupportRepository) TouchPresence(ctx context.Context, agentID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO support_agent_presence (user_id, last_heartbeat)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_heartbeat = GREATEST(support_agent_presence.last_heartbeat, EXCLUDED.last_heartbeat)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query, toUUID(agentID), toTimestamptz(at))
	return err
}

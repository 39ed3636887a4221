package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
)

// SupportRepository is the narrow gateway onto the ticket, message and
// presence tables. It only needs read/filter/update/insert primitives.
type SupportRepository interface {
	// ListAssignedTickets returns every ticket with status assigned.
	ListAssignedTickets(ctx context.Context) ([]*domain.Ticket, error)
	// LastAgentMessage returns the newest agent-authored message on a ticket,
	// or nil when the agent never replied.
	LastAgentMessage(ctx context.Context, ticketID uuid.UUID) (*domain.Message, error)
	// OnlineAgents returns agents whose heartbeat is at or after since, in a
	// stable enumeration order.
	OnlineAgents(ctx context.Context, since time.Time) ([]uuid.UUID, error)
	// CountOpenTickets counts tickets assigned to the agent in an open-load state.
	CountOpenTickets(ctx context.Context, agentID uuid.UUID) (int, error)
	// Reassign hands the ticket to a new agent and moves it to escalated. It
	// returns ErrTicketChanged when the ticket is no longer assigned to From.
	Reassign(ctx context.Context, params ReassignParams) error
	// AppendSystemMessage inserts an audit message into the ticket thread.
	AppendSystemMessage(ctx context.Context, msg *domain.Message) error
	// UpdatePresenceCount persists an agent's active ticket counter.
	UpdatePresenceCount(ctx context.Context, agentID uuid.UUID, count int) error
	// TouchPresence records a heartbeat for the agent, creating the row if needed.
	TouchPresence(ctx context.Context, agentID uuid.UUID, at time.Time) error
}

// RoleRepository resolves the roles a user holds.
type RoleRepository interface {
	GetUserRoles(ctx context.Context, userID uuid.UUID) ([]domain.Role, error)
}

// ReassignParams carries one automatic transfer to the store.
type ReassignParams struct {
	TicketID  uuid.UUID
	From      *uuid.UUID
	To        uuid.UUID
	UpdatedAt time.Time
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo is a helper to create a clean repository for a test.
func newTestRepo(t *testing.T) *SupportRepository {
	resetTables(t)
	return NewSupportRepository(testPool)
}

func insertTicket(t *testing.T, status domain.TicketStatus, assignedTo *uuid.UUID, updatedAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO support_tickets (id, status, assigned_to, updated_at) VALUES ($1, $2, $3, $4)`,
		toUUID(id), string(status), toNullUUID(assignedTo), toTimestamptz(updatedAt))
	require.NoError(t, err)
	return id
}

func insertMessage(t *testing.T, ticketID uuid.UUID, sender domain.SenderType, senderID *uuid.UUID, at time.Time) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO support_messages (ticket_id, sender_type, sender_id, body, created_at) VALUES ($1, $2, $3, 'msg', $4)`,
		toUUID(ticketID), string(sender), toNullUUID(senderID), toTimestamptz(at))
	require.NoError(t, err)
}

func loadTicket(t *testing.T, id uuid.UUID) (domain.TicketStatus, *uuid.UUID) {
	t.Helper()
	var (
		status     string
		assignedTo pgtype.UUID
	)
	err := testPool.QueryRow(context.Background(),
		`SELECT status, assigned_to FROM support_tickets WHERE id = $1`, toUUID(id)).Scan(&status, &assignedTo)
	require.NoError(t, err)
	return domain.TicketStatus(status), fromNullUUID(assignedTo)
}

func TestSupportRepository_ListAssignedTickets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	agent := uuid.New()

	newer := insertTicket(t, domain.StatusAssigned, &agent, now.Add(-time.Minute))
	older := insertTicket(t, domain.StatusAssigned, &agent, now.Add(-time.Hour))
	insertTicket(t, domain.StatusEscalated, &agent, now)
	insertTicket(t, domain.StatusResolved, &agent, now)

	tickets, err := repo.ListAssignedTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	assert.Equal(t, older, tickets[0].ID)
	assert.Equal(t, newer, tickets[1].ID)
	assert.Equal(t, domain.StatusAssigned, tickets[0].Status)
	require.NotNil(t, tickets[0].AssignedTo)
	assert.Equal(t, agent, *tickets[0].AssignedTo)
	assert.True(t, tickets[0].UpdatedAt.Equal(now.Add(-time.Hour)))
}

func TestSupportRepository_LastAgentMessage(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	agent := uuid.New()
	ticketID := insertTicket(t, domain.StatusAssigned, &agent, now)

	t.Run("no agent reply", func(t *testing.T) {
		insertMessage(t, ticketID, domain.SenderUser, nil, now)

		msg, err := repo.LastAgentMessage(ctx, ticketID)
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("newest agent reply wins", func(t *testing.T) {
		insertMessage(t, ticketID, domain.SenderAgent, &agent, now.Add(-30*time.Minute))
		insertMessage(t, ticketID, domain.SenderAgent, &agent, now.Add(-10*time.Minute))
		insertMessage(t, ticketID, domain.SenderSystem, nil, now.Add(-time.Minute))

		msg, err := repo.LastAgentMessage(ctx, ticketID)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, domain.SenderAgent, msg.SenderType)
		assert.True(t, msg.CreatedAt.Equal(now.Add(-10*time.Minute)))
		require.NotNil(t, msg.SenderID)
		assert.Equal(t, agent, *msg.SenderID)
	})
}

func TestSupportRepository_OnlineAgents(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	fresh, recent, stale := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, repo.TouchPresence(ctx, recent, now.Add(-30*time.Second)))
	require.NoError(t, repo.TouchPresence(ctx, fresh, now.Add(-5*time.Second)))
	require.NoError(t, repo.TouchPresence(ctx, stale, now.Add(-5*time.Minute)))

	agents, err := repo.OnlineAgents(ctx, now.Add(-60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fresh, recent}, agents)
}

func TestSupportRepository_TouchPresence_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	agent := uuid.New()

	require.NoError(t, repo.TouchPresence(ctx, agent, now))
	require.NoError(t, repo.TouchPresence(ctx, agent, now.Add(-time.Hour)))

	agents, err := repo.OnlineAgents(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{agent}, agents)
}

func TestSupportRepository_CountOpenTickets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC()
	agent, other := uuid.New(), uuid.New()

	insertTicket(t, domain.StatusAssigned, &agent, now)
	insertTicket(t, domain.StatusEscalated, &agent, now)
	insertTicket(t, domain.StatusResolved, &agent, now)
	insertTicket(t, domain.StatusAIHandling, &agent, now)
	insertTicket(t, domain.StatusAssigned, &other, now)

	n, err := repo.CountOpenTickets(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountOpenTickets(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSupportRepository_Reassign(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	from, to := uuid.New(), uuid.New()

	t.Run("moves the ticket", func(t *testing.T) {
		id := insertTicket(t, domain.StatusAssigned, &from, now.Add(-time.Hour))

		err := repo.Reassign(ctx, ports.ReassignParams{TicketID: id, From: &from, To: to, UpdatedAt: now})
		require.NoError(t, err)

		status, assignee := loadTicket(t, id)
		assert.Equal(t, domain.StatusEscalated, status)
		require.NotNil(t, assignee)
		assert.Equal(t, to, *assignee)
	})

	t.Run("unassigned ticket matches a nil from", func(t *testing.T) {
		id := insertTicket(t, domain.StatusAssigned, nil, now.Add(-time.Hour))

		err := repo.Reassign(ctx, ports.ReassignParams{TicketID: id, To: to, UpdatedAt: now})
		require.NoError(t, err)

		_, assignee := loadTicket(t, id)
		require.NotNil(t, assignee)
		assert.Equal(t, to, *assignee)
	})

	t.Run("changed assignee is a conflict", func(t *testing.T) {
		id := insertTicket(t, domain.StatusAssigned, &to, now.Add(-time.Hour))

		err := repo.Reassign(ctx, ports.ReassignParams{TicketID: id, From: &from, To: uuid.New(), UpdatedAt: now})
		assert.ErrorIs(t, err, apperrors.ErrTicketChanged)

		_, assignee := loadTicket(t, id)
		assert.Equal(t, to, *assignee)
	})

	t.Run("changed status is a conflict", func(t *testing.T) {
		id := insertTicket(t, domain.StatusResolved, &from, now.Add(-time.Hour))

		err := repo.Reassign(ctx, ports.ReassignParams{TicketID: id, From: &from, To: to, UpdatedAt: now})
		assert.ErrorIs(t, err, apperrors.ErrTicketChanged)
	})

	t.Run("missing ticket", func(t *testing.T) {
		err := repo.Reassign(ctx, ports.ReassignParams{TicketID: uuid.New(), From: &from, To: to, UpdatedAt: now})
		assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
	})
}

func TestSupportRepository_AppendSystemMessage(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	ticketID := insertTicket(t, domain.StatusEscalated, nil, now)

	msg := domain.NewSystemMessage(ticketID, domain.TransferNotice, now)
	require.NoError(t, repo.AppendSystemMessage(ctx, msg))

	var (
		body     string
		senderID pgtype.UUID
	)
	err := testPool.QueryRow(ctx,
		`SELECT body, sender_id FROM support_messages WHERE id = $1 AND sender_type = 'system'`,
		toUUID(msg.ID)).Scan(&body, &senderID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferNotice, body)
	assert.False(t, senderID.Valid)

	agentMsg := &domain.Message{ID: uuid.New(), TicketID: ticketID, SenderType: domain.SenderAgent, Body: "hi", CreatedAt: now}
	assert.Error(t, repo.AppendSystemMessage(ctx, agentMsg))
}

func TestSupportRepository_UpdatePresenceCount(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	agent := uuid.New()

	require.NoError(t, repo.TouchPresence(ctx, agent, time.Now()))
	require.NoError(t, repo.UpdatePresenceCount(ctx, agent, 3))

	var count int32
	err := testPool.QueryRow(ctx,
		`SELECT active_ticket_count FROM support_agent_presence WHERE user_id = $1`, toUUID(agent)).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, int32(3), count)

	// No presence row: nothing to update, not an error.
	require.NoError(t, repo.UpdatePresenceCount(ctx, uuid.New(), 1))
}

func TestTransactionManager(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tm := NewTransactionManager(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	from, to := uuid.New(), uuid.New()

	t.Run("rollback undoes the reassignment", func(t *testing.T) {
		id := insertTicket(t, domain.StatusAssigned, &from, now.Add(-time.Hour))
		boom := errors.New("boom")

		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			if err := repo.Reassign(ctx, ports.ReassignParams{TicketID: id, From: &from, To: to, UpdatedAt: now}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		status, assignee := loadTicket(t, id)
		assert.Equal(t, domain.StatusAssigned, status)
		assert.Equal(t, from, *assignee)
	})

	t.Run("commit keeps both writes", func(t *testing.T) {
		id := insertTicket(t, domain.StatusAssigned, &from, now.Add(-time.Hour))

		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			if err := repo.Reassign(ctx, ports.ReassignParams{TicketID: id, From: &from, To: to, UpdatedAt: now}); err != nil {
				return err
			}
			// Nested calls join the outer transaction.
			return tm.WithTransaction(ctx, func(ctx context.Context) error {
				return repo.AppendSystemMessage(ctx, domain.NewSystemMessage(id, domain.TransferNotice, now))
			})
		})
		require.NoError(t, err)

		status, _ := loadTicket(t, id)
		assert.Equal(t, domain.StatusEscalated, status)

		var n int
		require.NoError(t, testPool.QueryRow(ctx,
			`SELECT count(*) FROM support_messages WHERE ticket_id = $1`, toUUID(id)).Scan(&n))
		assert.Equal(t, 1, n)
	})
}

package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status domain.TicketStatus
		want   bool
	}{
		{"ai_handling is valid", domain.StatusAIHandling, true},
		{"escalated is valid", domain.StatusEscalated, true},
		{"assigned is valid", domain.StatusAssigned, true},
		{"resolved is valid", domain.StatusResolved, true},
		{"empty is invalid", domain.TicketStatus(""), false},
		{"uppercase is invalid", domain.TicketStatus("ASSIGNED"), false},
		{"closed is invalid", domain.TicketStatus("closed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestTicketStatus_CountsAsLoad(t *testing.T) {
	assert.True(t, domain.StatusAssigned.CountsAsLoad())
	assert.True(t, domain.StatusEscalated.CountsAsLoad())
	assert.False(t, domain.StatusAIHandling.CountsAsLoad())
	assert.False(t, domain.StatusResolved.CountsAsLoad())
}

func TestTicket_EligibleForTimeout(t *testing.T) {
	for _, status := range []domain.TicketStatus{
		domain.StatusAIHandling,
		domain.StatusEscalated,
		domain.StatusResolved,
	} {
		ticket := &domain.Ticket{ID: uuid.New(), Status: status}
		assert.False(t, ticket.EligibleForTimeout(), "status %s", status)
	}

	ticket := &domain.Ticket{ID: uuid.New(), Status: domain.StatusAssigned}
	assert.True(t, ticket.EligibleForTimeout())
}

func TestTicket_HandOff(t *testing.T) {
	previous := uuid.New()
	next := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ticket := &domain.Ticket{
		ID:         uuid.New(),
		Status:     domain.StatusAssigned,
		AssignedTo: &previous,
		UpdatedAt:  now.Add(-time.Hour),
	}

	ticket.HandOff(next, now)

	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, next, *ticket.AssignedTo)
	assert.Equal(t, domain.StatusEscalated, ticket.Status)
	assert.Equal(t, now, ticket.UpdatedAt)
	assert.True(t, ticket.IsAssignedTo(next))
	assert.False(t, ticket.IsAssignedTo(previous))
}

func TestNewSystemMessage(t *testing.T) {
	ticketID := uuid.New()
	now := time.Now()

	msg := domain.NewSystemMessage(ticketID, domain.TransferNotice, now)

	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, ticketID, msg.TicketID)
	assert.Equal(t, domain.SenderSystem, msg.SenderType)
	assert.Nil(t, msg.SenderID)
	assert.Equal(t, domain.TransferNotice, msg.Body)
	assert.True(t, msg.CreatedAt.Equal(now))
}

func TestAgentPresence_IsOnline(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		heartbeat time.Time
		want      bool
	}{
		{"fresh heartbeat", now.Add(-5 * time.Second), true},
		{"just inside window", now.Add(-59 * time.Second), true},
		{"exactly at window edge", now.Add(-60 * time.Second), false},
		{"stale heartbeat", now.Add(-5 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.AgentPresence{AgentID: uuid.New(), LastHeartbeat: tt.heartbeat}
			assert.Equal(t, tt.want, p.IsOnline(now, domain.DefaultPresenceWindow))
		})
	}
}

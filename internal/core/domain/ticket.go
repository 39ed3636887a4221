package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus represents the possible states of a support ticket.
type TicketStatus string

const (
	StatusAIHandling TicketStatus = "ai_handling"
	StatusEscalated  TicketStatus = "escalated"
	StatusAssigned   TicketStatus = "assigned"
	StatusResolved   TicketStatus = "resolved"
)

// IsValid reports whether s is one of the known ticket states.
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusAIHandling, StatusEscalated, StatusAssigned, StatusResolved:
		return true
	default:
		return false
	}
}

// CountsAsLoad reports whether a ticket in this state occupies an agent.
func (s TicketStatus) CountsAsLoad() bool {
	return s == StatusAssigned || s == StatusEscalated
}

// OpenLoadStatuses lists the states counted towards an agent's workload.
var OpenLoadStatuses = []TicketStatus{StatusAssigned, StatusEscalated}

// Ticket is the subset of a support ticket the redistribution job reads and writes.
type Ticket struct {
	ID         uuid.UUID
	Status     TicketStatus
	AssignedTo *uuid.UUID
	UpdatedAt  time.Time
}

// IsAssignedTo checks if the ticket is currently assigned to the given agent.
func (t *Ticket) IsAssignedTo(agentID uuid.UUID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == agentID
}

// EligibleForTimeout reports whether the ticket can be picked up by the
// inactivity sweep. Only tickets an agent has accepted qualify.
func (t *Ticket) EligibleForTimeout() bool {
	return t.Status == StatusAssigned
}

// HandOff moves the ticket to a new agent. The ticket re-enters the escalated
// state so the new agent's own action moves it back to assigned.
func (t *Ticket) HandOff(agentID uuid.UUID, now time.Time) {
	t.AssignedTo = &agentID
	t.Status = StatusEscalated
	t.UpdatedAt = now.UTC()
}

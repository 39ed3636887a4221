package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultInactivityTimeout is how long an assigned ticket may go without an
// agent reply before it is handed to someone else.
const DefaultInactivityTimeout = 15 * time.Minute

// RedistributionPolicy holds the two thresholds the sweep works with.
type RedistributionPolicy struct {
	InactivityTimeout time.Duration
	PresenceWindow    time.Duration
}

// DefaultRedistributionPolicy returns the production thresholds.
func DefaultRedistributionPolicy() RedistributionPolicy {
	return RedistributionPolicy{
		InactivityTimeout: DefaultInactivityTimeout,
		PresenceWindow:    DefaultPresenceWindow,
	}
}

// Cutoffs returns the inactivity cutoff and the presence cutoff for a run started at now.
func (p RedistributionPolicy) Cutoffs(now time.Time) (cutoff, presenceCutoff time.Time) {
	return now.Add(-p.InactivityTimeout), now.Add(-p.PresenceWindow)
}

// NeedsRedistribution decides whether an assigned ticket has gone silent.
// When the agent has written at least once, their latest message is the
// reference; otherwise the ticket's own last update (the hand-off) is.
func NeedsRedistribution(ticket *Ticket, lastAgentMessage *Message, cutoff time.Time) bool {
	if !ticket.EligibleForTimeout() {
		return false
	}
	if lastAgentMessage != nil {
		return lastAgentMessage.CreatedAt.Before(cutoff)
	}
	return ticket.UpdatedAt.Before(cutoff)
}

// CandidatePool returns the online agents that may take over a ticket,
// preserving enumeration order and excluding the current assignee.
func CandidatePool(online []uuid.UUID, current *uuid.UUID) []uuid.UUID {
	pool := make([]uuid.UUID, 0, len(online))
	for _, id := range online {
		if current != nil && id == *current {
			continue
		}
		pool = append(pool, id)
	}
	return pool
}

// SelectLeastLoaded picks the candidate with the fewest open tickets.
// Ties go to the candidate enumerated first. Candidates missing from loads
// count as zero.
func SelectLeastLoaded(candidates []uuid.UUID, loads map[uuid.UUID]int) (uuid.UUID, bool) {
	if len(candidates) == 0 {
		return uuid.Nil, false
	}

	best := candidates[0]
	bestLoad := loads[best]
	for _, id := range candidates[1:] {
		if load := loads[id]; load < bestLoad {
			best, bestLoad = id, load
		}
	}
	return best, true
}

// Reassignment records a single automatic transfer.
type Reassignment struct {
	TicketID  uuid.UUID
	From      *uuid.UUID
	To        uuid.UUID
	Load      int
	MessageID uuid.UUID
	At        time.Time
}

// RedistributionResult summarises one run of the sweep.
type RedistributionResult struct {
	Redistributed int
	Scanned       int
	Stalled       int
	NoCandidate   int
	Conflicts     int
	LockSkipped   bool
	Reassignments []Reassignment
}

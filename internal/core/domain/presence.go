package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPresenceWindow is how recent a heartbeat must be for an agent to count as online.
const DefaultPresenceWindow = 60 * time.Second

// AgentPresence is the liveness record an agent's client keeps fresh.
type AgentPresence struct {
	AgentID           uuid.UUID
	LastHeartbeat     time.Time
	ActiveTicketCount int
}

// IsOnline reports whether the agent heartbeat falls inside window relative to now.
func (p *AgentPresence) IsOnline(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastHeartbeat) < window
}

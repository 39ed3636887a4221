package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of real-time event.
type EventType string

const (
	EventTicketRedistributed EventType = "TICKET_REDISTRIBUTED"
	EventHeartbeatAck        EventType = "HEARTBEAT_ACK"
	EventPong                EventType = "PONG"
	EventError               EventType = "ERROR"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type     EventType   `json:"type"`
	Payload  interface{} `json:"payload,omitempty"`
	TicketID uuid.UUID   `json:"ticketId"` // Used for routing to specific ticket "rooms"
}

// RedistributionPayload is the body of a TICKET_REDISTRIBUTED event.
type RedistributionPayload struct {
	TicketID        string  `json:"ticketId"`
	FromAgentID     *string `json:"fromAgentId"`
	ToAgentID       string  `json:"toAgentId"`
	Status          string  `json:"status"`
	RedistributedAt string  `json:"redistributedAt"`
}

// NewRedistributedEvent builds the event announcing an automatic transfer.
func NewRedistributedEvent(r Reassignment) Event {
	var from *string
	if r.From != nil {
		s := r.From.String()
		from = &s
	}
	return Event{
		Type:     EventTicketRedistributed,
		TicketID: r.TicketID,
		Payload: RedistributionPayload{
			TicketID:        r.TicketID.String(),
			FromAgentID:     from,
			ToAgentID:       r.To.String(),
			Status:          string(StatusEscalated),
			RedistributedAt: r.At.UTC().Format(time.RFC3339),
		},
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who authored a ticket message.
type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderAI     SenderType = "ai"
	SenderAgent  SenderType = "agent"
	SenderSystem SenderType = "system"
)

// IsValid reports whether the sender type is known.
func (s SenderType) IsValid() bool {
	switch s {
	case SenderUser, SenderAI, SenderAgent, SenderSystem:
		return true
	default:
		return false
	}
}

// TransferNotice is the body of the audit message appended on every automatic transfer.
const TransferNotice = "Ticket transferido automaticamente para outro agente por tempo de resposta excedido."

// Message is a single entry in a ticket thread.
type Message struct {
	ID         uuid.UUID
	TicketID   uuid.UUID
	SenderType SenderType
	SenderID   *uuid.UUID
	Body       string
	CreatedAt  time.Time
}

// NewSystemMessage builds the audit record for an automatic transfer.
func NewSystemMessage(ticketID uuid.UUID, body string, now time.Time) *Message {
	return &Message{
		ID:         uuid.New(),
		TicketID:   ticketID,
		SenderType: SenderSystem,
		Body:       body,
		CreatedAt:  now.UTC(),
	}
}

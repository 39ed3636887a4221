// Package memory holds in-process implementations of the core ports. The
// store backs tests and local runs; the run lock is used when no Redis is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// Operation names accepted by FailOn.
const (
	OpListAssignedTickets = "ListAssignedTickets"
	OpLastAgentMessage    = "LastAgentMessage"
	OpOnlineAgents        = "OnlineAgents"
	OpCountOpenTickets    = "CountOpenTickets"
	OpReassign            = "Reassign"
	OpAppendSystemMessage = "AppendSystemMessage"
	OpUpdatePresenceCount = "UpdatePresenceCount"
	OpTouchPresence       = "TouchPresence"
	OpGetUserRoles        = "GetUserRoles"
)

// Store is an in-memory ticket/message/presence/role store.
type Store struct {
	mu       sync.RWMutex
	tickets  map[uuid.UUID]*domain.Ticket
	order    []uuid.UUID
	messages []*domain.Message
	presence map[uuid.UUID]*domain.AgentPresence
	roles    map[uuid.UUID][]domain.Role
	failures map[string]error
	writes   int
}

var (
	_ ports.SupportRepository  = (*Store)(nil)
	_ ports.RoleRepository     = (*Store)(nil)
	_ ports.TransactionManager = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tickets:  make(map[uuid.UUID]*domain.Ticket),
		presence: make(map[uuid.UUID]*domain.AgentPresence),
		roles:    make(map[uuid.UUID][]domain.Role),
		failures: make(map[string]error),
	}
}

// --- Seeding and inspection ---

// AddTicket inserts or replaces a ticket. Insertion order is the scan order.
func (s *Store) AddTicket(t domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.tickets[t.ID] = cloneTicket(&t)
}

// AddMessage appends a message to a ticket thread.
func (s *Store) AddMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := m
	s.messages = append(s.messages, &msg)
}

// SetPresence inserts or replaces an agent presence row.
func (s *Store) SetPresence(p domain.AgentPresence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := p
	s.presence[p.AgentID] = &row
}

// GrantRole adds a role to a user.
func (s *Store) GrantRole(userID uuid.UUID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = append(s.roles[userID], role)
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Ticket returns a copy of the stored ticket.
func (s *Store) Ticket(id uuid.UUID) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, false
	}
	return *cloneTicket(t), true
}

// Messages returns copies of a ticket's messages in insertion order.
func (s *Store) Messages(ticketID uuid.UUID) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.TicketID == ticketID {
			out = append(out, *m)
		}
	}
	return out
}

// Presence returns a copy of an agent's presence row.
func (s *Store) Presence(agentID uuid.UUID) (domain.AgentPresence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[agentID]
	if !ok {
		return domain.AgentPresence{}, false
	}
	return *p, true
}

// Writes counts successful mutating calls made through the repository ports.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// --- ports.SupportRepository ---

func (s *Store) ListAssignedTickets(_ context.Context) ([]*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[OpListAssignedTickets]; err != nil {
		return nil, err
	}

	var out []*domain.Ticket
	for _, id := range s.order {
		if t := s.tickets[id]; t.Status == domain.StatusAssigned {
			out = append(out, cloneTicket(t))
		}
	}
	return out, nil
}

func (s *Store) LastAgentMessage(_ context.Context, ticketID uuid.UUID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[OpLastAgentMessage]; err != nil {
		return nil, err
	}

	var last *domain.Message
	for _, m := range s.messages {
		if m.TicketID != ticketID || m.SenderType != domain.SenderAgent {
			continue
		}
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = m
		}
	}
	if last == nil {
		return nil, nil
	}
	msg := *last
	return &msg, nil
}

// OnlineAgents orders by most recent heartbeat first, then by id, matching
// the postgres adapter.
func (s *Store) OnlineAgents(_ context.Context, since time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[OpOnlineAgents]; err != nil {
		return nil, err
	}

	rows := make([]*domain.AgentPresence, 0, len(s.presence))
	for _, p := range s.presence {
		if !p.LastHeartbeat.Before(since) {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].LastHeartbeat.Equal(rows[j].LastHeartbeat) {
			return rows[i].LastHeartbeat.After(rows[j].LastHeartbeat)
		}
		return rows[i].AgentID.String() < rows[j].AgentID.String()
	})

	out := make([]uuid.UUID, len(rows))
	for i, p := range rows {
		out[i] = p.AgentID
	}
	return out, nil
}

func (s *Store) CountOpenTickets(_ context.Context, agentID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[OpCountOpenTickets]; err != nil {
		return 0, err
	}

	n := 0
	for _, t := range s.tickets {
		if t.IsAssignedTo(agentID) && t.Status.CountsAsLoad() {
			n++
		}
	}
	return n, nil
}

func (s *Store) Reassign(_ context.Context, params ports.ReassignParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpReassign]; err != nil {
		return err
	}

	t, ok := s.tickets[params.TicketID]
	if !ok {
		return apperrors.ErrTicketNotFound
	}
	if t.Status != domain.StatusAssigned || !sameAgent(t.AssignedTo, params.From) {
		return apperrors.ErrTicketChanged
	}

	t.HandOff(params.To, params.UpdatedAt)
	s.writes++
	return nil
}

func (s *Store) AppendSystemMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpAppendSystemMessage]; err != nil {
		return err
	}
	if _, ok := s.tickets[msg.TicketID]; !ok {
		return apperrors.ErrTicketNotFound
	}

	m := *msg
	s.messages = append(s.messages, &m)
	s.writes++
	return nil
}

func (s *Store) UpdatePresenceCount(_ context.Context, agentID uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpUpdatePresenceCount]; err != nil {
		return err
	}

	if p, ok := s.presence[agentID]; ok {
		p.ActiveTicketCount = count
		s.writes++
	}
	return nil
}

func (s *Store) TouchPresence(_ context.Context, agentID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpTouchPresence]; err != nil {
		return err
	}

	if p, ok := s.presence[agentID]; ok {
		p.LastHeartbeat = at
	} else {
		s.presence[agentID] = &domain.AgentPresence{AgentID: agentID, LastHeartbeat: at}
	}
	s.writes++
	return nil
}

// --- ports.RoleRepository ---

func (s *Store) GetUserRoles(_ context.Context, userID uuid.UUID) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures[OpGetUserRoles]; err != nil {
		return nil, err
	}
	return append([]domain.Role(nil), s.roles[userID]...), nil
}

// --- ports.TransactionManager ---

// WithTransaction snapshots tickets and messages and restores them if fn fails.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	tickets := make(map[uuid.UUID]*domain.Ticket, len(s.tickets))
	for id, t := range s.tickets {
		tickets[id] = cloneTicket(t)
	}
	messageCount := len(s.messages)
	writes := s.writes
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.tickets = tickets
		s.messages = s.messages[:messageCount]
		s.writes = writes
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	return &c
}

func sameAgent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

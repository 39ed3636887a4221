package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedistributionPolicy_Cutoffs(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

	cutoff, presenceCutoff := domain.DefaultRedistributionPolicy().Cutoffs(now)

	assert.Equal(t, now.Add(-15*time.Minute), cutoff)
	assert.Equal(t, now.Add(-60*time.Second), presenceCutoff)
}

func TestNeedsRedistribution(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	cutoff := now.Add(-15 * time.Minute)

	agentMessageAt := func(at time.Time) *domain.Message {
		return &domain.Message{ID: uuid.New(), SenderType: domain.SenderAgent, CreatedAt: at}
	}

	tests := []struct {
		name    string
		ticket  domain.Ticket
		lastMsg *domain.Message
		want    bool
	}{
		{
			name:    "recent agent message keeps ticket",
			ticket:  domain.Ticket{Status: domain.StatusAssigned, UpdatedAt: now.Add(-2 * time.Hour)},
			lastMsg: agentMessageAt(now.Add(-5 * time.Minute)),
			want:    false,
		},
		{
			name:    "stale agent message triggers redistribution",
			ticket:  domain.Ticket{Status: domain.StatusAssigned, UpdatedAt: now},
			lastMsg: agentMessageAt(now.Add(-20 * time.Minute)),
			want:    true,
		},
		{
			name:    "agent message exactly at cutoff is not stale",
			ticket:  domain.Ticket{Status: domain.StatusAssigned, UpdatedAt: now.Add(-time.Hour)},
			lastMsg: agentMessageAt(cutoff),
			want:    false,
		},
		{
			name:   "no agent message and old update triggers redistribution",
			ticket: domain.Ticket{Status: domain.StatusAssigned, UpdatedAt: now.Add(-16 * time.Minute)},
			want:   true,
		},
		{
			name:   "no agent message and recent update keeps ticket",
			ticket: domain.Ticket{Status: domain.StatusAssigned, UpdatedAt: now.Add(-10 * time.Minute)},
			want:   false,
		},
		{
			name:   "escalated ticket is never eligible",
			ticket: domain.Ticket{Status: domain.StatusEscalated, UpdatedAt: now.Add(-time.Hour)},
			want:   false,
		},
		{
			name:   "resolved ticket is never eligible",
			ticket: domain.Ticket{Status: domain.StatusResolved, UpdatedAt: now.Add(-time.Hour)},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := tt.ticket
			assert.Equal(t, tt.want, domain.NeedsRedistribution(&ticket, tt.lastMsg, cutoff))
		})
	}
}

func TestCandidatePool(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	t.Run("excludes current assignee and keeps order", func(t *testing.T) {
		pool := domain.CandidatePool([]uuid.UUID{a, b, c}, &b)
		assert.Equal(t, []uuid.UUID{a, c}, pool)
	})

	t.Run("unassigned ticket keeps everyone", func(t *testing.T) {
		pool := domain.CandidatePool([]uuid.UUID{a, b}, nil)
		assert.Equal(t, []uuid.UUID{a, b}, pool)
	})

	t.Run("only the assignee online yields empty pool", func(t *testing.T) {
		pool := domain.CandidatePool([]uuid.UUID{a}, &a)
		assert.Empty(t, pool)
	})
}

func TestSelectLeastLoaded(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	t.Run("first seen wins ties", func(t *testing.T) {
		loads := map[uuid.UUID]int{a: 3, b: 1, c: 1}

		picked, ok := domain.SelectLeastLoaded([]uuid.UUID{a, b, c}, loads)
		require.True(t, ok)
		assert.Equal(t, b, picked)

		picked, ok = domain.SelectLeastLoaded([]uuid.UUID{a, c, b}, loads)
		require.True(t, ok)
		assert.Equal(t, c, picked)
	})

	t.Run("strictly smaller load wins", func(t *testing.T) {
		loads := map[uuid.UUID]int{a: 2, b: 5, c: 0}

		picked, ok := domain.SelectLeastLoaded([]uuid.UUID{a, b, c}, loads)
		require.True(t, ok)
		assert.Equal(t, c, picked)
	})

	t.Run("missing load counts as zero", func(t *testing.T) {
		loads := map[uuid.UUID]int{a: 1}

		picked, ok := domain.SelectLeastLoaded([]uuid.UUID{a, b}, loads)
		require.True(t, ok)
		assert.Equal(t, b, picked)
	})

	t.Run("empty pool", func(t *testing.T) {
		_, ok := domain.SelectLeastLoaded(nil, nil)
		assert.False(t, ok)
	})
}

func TestNewRedistributedEvent(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	at := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	r := domain.Reassignment{TicketID: uuid.New(), From: &from, To: to, At: at}

	event := domain.NewRedistributedEvent(r)

	assert.Equal(t, domain.EventTicketRedistributed, event.Type)
	assert.Equal(t, r.TicketID, event.TicketID)
	payload, ok := event.Payload.(domain.RedistributionPayload)
	require.True(t, ok)
	require.NotNil(t, payload.FromAgentID)
	assert.Equal(t, from.String(), *payload.FromAgentID)
	assert.Equal(t, to.String(), payload.ToAgentID)
	assert.Equal(t, "escalated", payload.Status)
	assert.Equal(t, "2026-05-10T09:30:00Z", payload.RedistributedAt)
}

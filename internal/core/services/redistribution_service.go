package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// RunLockKey is the lock name shared by every replica running the sweep.
const RunLockKey = "support-auto-redistribute"

// DefaultRunLockTTL bounds how long a crashed run can keep others out.
const DefaultRunLockTTL = 5 * time.Minute

// Run triggers, used as metric labels and log attributes.
const (
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
)

// RedistributionService moves stalled assigned tickets to the least loaded
// online agent. Runs are sequential and there is no run-wide transaction: a
// failed run keeps the transfers it already made.
type RedistributionService struct {
	repo        ports.SupportRepository
	txManager   ports.TransactionManager
	authzSvc    ports.AuthorizationService
	locker      ports.RunLocker
	broadcaster ports.EventBroadcaster
	recorder    ports.RunRecorder
	policy      domain.RedistributionPolicy
	lockTTL     time.Duration
	clock       ports.Clock
	logger      *slog.Logger
}

var _ ports.RedistributionService = (*RedistributionService)(nil)

// RedistributionOption customises a RedistributionService.
type RedistributionOption func(*RedistributionService)

// WithPolicy overrides the inactivity and presence thresholds.
func WithPolicy(policy domain.RedistributionPolicy) RedistributionOption {
	return func(s *RedistributionService) { s.policy = policy }
}

// WithClock overrides the time source.
func WithClock(clock ports.Clock) RedistributionOption {
	return func(s *RedistributionService) { s.clock = clock }
}

// WithRunRecorder attaches a metrics sink.
func WithRunRecorder(recorder ports.RunRecorder) RedistributionOption {
	return func(s *RedistributionService) { s.recorder = recorder }
}

// WithBroadcaster attaches the realtime fan-out.
func WithBroadcaster(broadcaster ports.EventBroadcaster) RedistributionOption {
	return func(s *RedistributionService) { s.broadcaster = broadcaster }
}

// WithLockTTL overrides how long the run lock is held at most.
func WithLockTTL(ttl time.Duration) RedistributionOption {
	return func(s *RedistributionService) { s.lockTTL = ttl }
}

// NewRedistributionService creates a new redistribution service
func NewRedistributionService(
	repo ports.SupportRepository,
	txManager ports.TransactionManager,
	authzSvc ports.AuthorizationService,
	locker ports.RunLocker,
	logger *slog.Logger,
	opts ...RedistributionOption,
) *RedistributionService {
	s := &RedistributionService{
		repo:      repo,
		txManager: txManager,
		authzSvc:  authzSvc,
		locker:    locker,
		policy:    domain.DefaultRedistributionPolicy(),
		lockTTL:   DefaultRunLockTTL,
		clock:     time.Now,
		logger:    logger.With("component", "redistribution"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Redistribute handles the use case for a caller-triggered sweep
func (s *RedistributionService) Redistribute(ctx context.Context, actorID uuid.UUID) (*domain.RedistributionResult, error) {
	// 1. Authorization Check
	if err := s.authzSvc.RequireSupportAccess(ctx, actorID); err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			s.logger.WarnContext(ctx, "redistribution denied", "actor_id", actorID)
		}
		return nil, err
	}

	// 2. Run the sweep
	return s.run(ctx, TriggerHTTP)
}

// RunOnce runs the sweep on behalf of the scheduler.
func (s *RedistributionService) RunOnce(ctx context.Context) (*domain.RedistributionResult, error) {
	return s.run(ctx, TriggerSchedule)
}

func (s *RedistributionService) run(ctx context.Context, trigger string) (*domain.RedistributionResult, error) {
	start := time.Now()

	if s.locker != nil {
		unlock, acquired, err := s.locker.TryLock(ctx, RunLockKey, s.lockTTL)
		switch {
		case err != nil:
			// The conditional ticket update still rejects double transfers.
			s.logger.WarnContext(ctx, "run lock unavailable, continuing unlocked", "trigger", trigger, "error", err)
		case !acquired:
			s.logger.InfoContext(ctx, "run skipped: lock held", "trigger", trigger)
			result := &domain.RedistributionResult{LockSkipped: true}
			s.record(trigger, result, nil, time.Since(start))
			return result, nil
		default:
			defer unlock()
		}
	}

	result, err := s.sweep(ctx)
	duration := time.Since(start)
	s.record(trigger, result, err, duration)

	if err != nil {
		s.logger.ErrorContext(ctx, "redistribution run failed",
			"trigger", trigger,
			"redistributed", result.Redistributed,
			"error", err,
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "redistribution run complete",
		"trigger", trigger,
		"scanned", result.Scanned,
		"stalled", result.Stalled,
		"redistributed", result.Redistributed,
		"no_candidate", result.NoCandidate,
		"conflicts", result.Conflicts,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

// sweep performs one pass. The returned result is never nil, so partial
// progress is visible even when err is set.
func (s *RedistributionService) sweep(ctx context.Context) (*domain.RedistributionResult, error) {
	result := &domain.RedistributionResult{}

	// 1. Load assigned tickets
	tickets, err := s.repo.ListAssignedTickets(ctx)
	if err != nil {
		return result, fmt.Errorf("list assigned tickets: %w", err)
	}
	result.Scanned = len(tickets)
	if len(tickets) == 0 {
		return result, nil
	}

	// 2. Thresholds
	now := s.clock()
	cutoff, presenceCutoff := s.policy.Cutoffs(now)

	// 3. Online agents
	online, err := s.repo.OnlineAgents(ctx, presenceCutoff)
	if err != nil {
		return result, fmt.Errorf("list online agents: %w", err)
	}

	// 4. Detect stalled tickets
	stalled := make([]*domain.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if !ticket.EligibleForTimeout() {
			continue
		}
		last, err := s.repo.LastAgentMessage(ctx, ticket.ID)
		if err != nil {
			return result, fmt.Errorf("last agent message for ticket %s: %w", ticket.ID, err)
		}
		if domain.NeedsRedistribution(ticket, last, cutoff) {
			stalled = append(stalled, ticket)
		}
	}
	result.Stalled = len(stalled)

	// 5. Hand each stalled ticket to the least loaded online agent
	for _, ticket := range stalled {
		pool := domain.CandidatePool(online, ticket.AssignedTo)
		if len(pool) == 0 {
			result.NoCandidate++
			s.logger.DebugContext(ctx, "no candidate agent online", "ticket_id", ticket.ID)
			continue
		}

		loads, err := s.loadsFor(ctx, pool)
		if err != nil {
			return result, err
		}
		target, _ := domain.SelectLeastLoaded(pool, loads)

		reassignment, err := s.handOff(ctx, ticket, target, now)
		if lostRace(err) {
			result.Conflicts++
			s.logger.InfoContext(ctx, "ticket changed during run, skipping", "ticket_id", ticket.ID, "error", err)
			continue
		}
		if err != nil {
			return result, err
		}
		reassignment.Load = loads[target]

		result.Redistributed++
		result.Reassignments = append(result.Reassignments, *reassignment)
		s.logger.InfoContext(ctx, "ticket redistributed",
			"ticket_id", ticket.ID,
			"from_agent_id", agentIDAttr(reassignment.From),
			"to_agent_id", target,
			"target_load", reassignment.Load,
		)
		s.announce(*reassignment)
	}

	// 6. Refresh presence counters
	if result.Redistributed > 0 {
		if err := s.refreshPresenceCounts(ctx, online); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *RedistributionService) loadsFor(ctx context.Context, pool []uuid.UUID) (map[uuid.UUID]int, error) {
	loads := make(map[uuid.UUID]int, len(pool))
	for _, agentID := range pool {
		n, err := s.repo.CountOpenTickets(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("count open tickets for agent %s: %w", agentID, err)
		}
		loads[agentID] = n
	}
	return loads, nil
}

// handOff reassigns the ticket and appends its audit message in one short
// transaction, so a transfer never exists without its record.
func (s *RedistributionService) handOff(ctx context.Context, ticket *domain.Ticket, target uuid.UUID, now time.Time) (*domain.Reassignment, error) {
	from := ticket.AssignedTo
	msg := domain.NewSystemMessage(ticket.ID, domain.TransferNotice, now)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Reassign(ctx, ports.ReassignParams{
			TicketID:  ticket.ID,
			From:      from,
			To:        target,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return s.repo.AppendSystemMessage(ctx, msg)
	})
	if err != nil {
		if lostRace(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reassign ticket %s: %w", ticket.ID, err)
	}

	ticket.HandOff(target, now)

	return &domain.Reassignment{
		TicketID:  ticket.ID,
		From:      from,
		To:        target,
		MessageID: msg.ID,
		At:        now,
	}, nil
}

func (s *RedistributionService) refreshPresenceCounts(ctx context.Context, online []uuid.UUID) error {
	for _, agentID := range online {
		n, err := s.repo.CountOpenTickets(ctx, agentID)
		if err != nil {
			return fmt.Errorf("count open tickets for agent %s: %w", agentID, err)
		}
		if err := s.repo.UpdatePresenceCount(ctx, agentID, n); err != nil {
			return fmt.Errorf("update presence count for agent %s: %w", agentID, err)
		}
	}
	return nil
}

// announce pushes the transfer to connected clients. Delivery is best effort.
func (s *RedistributionService) announce(r domain.Reassignment) {
	if s.broadcaster == nil {
		return
	}
	event := domain.NewRedistributedEvent(r)
	_ = s.broadcaster.Broadcast(event)
	s.broadcaster.SendToUser(r.To, event)
	if r.From != nil {
		s.broadcaster.SendToUser(*r.From, event)
	}
}

func (s *RedistributionService) record(trigger string, result *domain.RedistributionResult, err error, d time.Duration) {
	if s.recorder != nil {
		s.recorder.RecordRun(trigger, result, err, d)
	}
}

func agentIDAttr(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// lostRace reports whether the ticket was changed or deleted after it was read.
func lostRace(err error) bool {
	return errors.Is(err, apperrors.ErrTicketChanged) || errors.Is(err, apperrors.ErrTicketNotFound)
}

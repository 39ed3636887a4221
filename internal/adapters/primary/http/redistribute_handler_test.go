package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/adapters/secondary/memory"
	"github.com/lorrc/support-redistributor/internal/auth"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/mocks"
	"github.com/lorrc/support-redistributor/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const functionURL = "/functions/v1/support-auto-redistribute"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	handler stdhttp.Handler
	tm      *auth.TokenManager
}

func newTestServer(redistribution *mocks.MockRedistributionService, presence *mocks.MockPresenceService) *testServer {
	logger := discardLogger()
	tm := auth.NewTokenManager("handler-test-secret", time.Hour)
	errorHandler := NewErrorHandler(logger)

	cfg := RouterConfig{Logger: logger, TokenManager: tm}
	if redistribution != nil {
		cfg.Redistribute = NewRedistributeHandler(redistribution, errorHandler, logger)
	}
	if presence != nil {
		cfg.Presence = NewPresenceHandler(presence, errorHandler, logger)
	}
	return &testServer{handler: NewRouter(cfg), tm: tm}
}

func (s *testServer) do(t *testing.T, method, path string, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if userID != uuid.Nil {
		token, err := s.tm.GenerateToken(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestRedistributeHandler(t *testing.T) {
	caller := uuid.New()

	t.Run("returns the count", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		svc.On("Redistribute", mock.Anything, caller).Return(&domain.RedistributionResult{Redistributed: 2}, nil).Once()
		srv := newTestServer(svc, nil)

		rec := srv.do(t, stdhttp.MethodPost, functionURL, caller)

		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.JSONEq(t, `{"redistributed":2}`, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		svc.AssertExpectations(t)
	})

	t.Run("skipped run reports zero", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		svc.On("Redistribute", mock.Anything, caller).Return(&domain.RedistributionResult{LockSkipped: true}, nil).Once()
		srv := newTestServer(svc, nil)

		rec := srv.do(t, stdhttp.MethodPost, functionURL, caller)

		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.JSONEq(t, `{"redistributed":0}`, rec.Body.String())
	})

	t.Run("any method other than OPTIONS triggers", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		svc.On("Redistribute", mock.Anything, caller).Return(&domain.RedistributionResult{Redistributed: 1}, nil).Twice()
		srv := newTestServer(svc, nil)

		for _, method := range []string{stdhttp.MethodGet, stdhttp.MethodPut} {
			rec := srv.do(t, method, functionURL, caller)
			assert.Equal(t, stdhttp.StatusOK, rec.Code, method)
		}
		svc.AssertExpectations(t)
	})

	t.Run("missing credential", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		srv := newTestServer(svc, nil)

		rec := srv.do(t, stdhttp.MethodPost, functionURL, uuid.Nil)

		assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		svc.AssertNotCalled(t, "Redistribute", mock.Anything, mock.Anything)
	})

	t.Run("forbidden role", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		svc.On("Redistribute", mock.Anything, caller).Return(nil, apperrors.ErrForbidden).Once()
		srv := newTestServer(svc, nil)

		rec := srv.do(t, stdhttp.MethodPost, functionURL, caller)

		assert.Equal(t, stdhttp.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String())
	})

	t.Run("store failure surfaces its message", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		svc.On("Redistribute", mock.Anything, caller).
			Return(nil, errors.New("list assigned tickets: connection refused")).Once()
		srv := newTestServer(svc, nil)

		rec := srv.do(t, stdhttp.MethodPost, functionURL, caller)

		assert.Equal(t, stdhttp.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"list assigned tickets: connection refused"}`, rec.Body.String())
	})

	t.Run("bare OPTIONS answers ok without auth", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		srv := newTestServer(svc, nil)

		rec := srv.do(t, stdhttp.MethodOptions, functionURL, uuid.Nil)

		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-client-info")
		svc.AssertNotCalled(t, "Redistribute", mock.Anything, mock.Anything)
	})

	t.Run("browser preflight", func(t *testing.T) {
		svc := mocks.NewMockRedistributionService()
		srv := newTestServer(svc, nil)

		req := httptest.NewRequest(stdhttp.MethodOptions, functionURL, nil)
		req.Header.Set("Origin", "https://suporte.example.com")
		req.Header.Set("Access-Control-Request-Method", stdhttp.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "authorization, apikey, content-type")
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)

		assert.Less(t, rec.Code, 300)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		svc.AssertNotCalled(t, "Redistribute", mock.Anything, mock.Anything)
	})
}

func TestPresenceHandler(t *testing.T) {
	agent := uuid.New()

	t.Run("records heartbeat", func(t *testing.T) {
		presence := mocks.NewMockPresenceService()
		presence.On("Heartbeat", mock.Anything, agent).Return(nil).Once()
		srv := newTestServer(nil, presence)

		rec := srv.do(t, stdhttp.MethodPost, "/api/v1/support/presence/heartbeat", agent)

		assert.Equal(t, stdhttp.StatusNoContent, rec.Code)
		presence.AssertExpectations(t)
	})

	t.Run("forbidden", func(t *testing.T) {
		presence := mocks.NewMockPresenceService()
		presence.On("Heartbeat", mock.Anything, agent).Return(apperrors.ErrForbidden).Once()
		srv := newTestServer(nil, presence)

		rec := srv.do(t, stdhttp.MethodPost, "/api/v1/support/presence/heartbeat", agent)

		assert.Equal(t, stdhttp.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String())
	})

	t.Run("anonymous", func(t *testing.T) {
		presence := mocks.NewMockPresenceService()
		srv := newTestServer(nil, presence)

		rec := srv.do(t, stdhttp.MethodPost, "/api/v1/support/presence/heartbeat", uuid.Nil)

		assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
		presence.AssertNotCalled(t, "Heartbeat", mock.Anything, mock.Anything)
	})
}

// TestRedistribute_EndToEnd drives the real services over the in-memory store.
func TestRedistribute_EndToEnd(t *testing.T) {
	now := time.Now().UTC()
	store := memory.NewStore()
	logger := discardLogger()
	authz := services.NewAuthorizationService(store)
	redistribution := services.NewRedistributionService(store, store, authz, memory.NewRunLock(), logger,
		services.WithClock(func() time.Time { return now }))

	tm := auth.NewTokenManager("handler-test-secret", time.Hour)
	router := NewRouter(RouterConfig{
		Logger:       logger,
		TokenManager: tm,
		Redistribute: NewRedistributeHandler(redistribution, NewErrorHandler(logger), logger),
	})

	caller, x, y := uuid.New(), uuid.New(), uuid.New()
	store.GrantRole(caller, domain.RoleSupportManager)
	store.SetPresence(domain.AgentPresence{AgentID: x, LastHeartbeat: now.Add(-5 * time.Second)})
	store.SetPresence(domain.AgentPresence{AgentID: y, LastHeartbeat: now.Add(-10 * time.Second)})
	t1 := uuid.New()
	store.AddTicket(domain.Ticket{ID: t1, Status: domain.StatusAssigned, AssignedTo: &x, UpdatedAt: now.Add(-time.Hour)})
	store.AddMessage(domain.Message{ID: uuid.New(), TicketID: t1, SenderType: domain.SenderAgent, SenderID: &x, CreatedAt: now.Add(-20 * time.Minute)})

	call := func(userID uuid.UUID) *httptest.ResponseRecorder {
		token, err := tm.GenerateToken(userID)
		require.NoError(t, err)
		req := httptest.NewRequest(stdhttp.MethodPost, functionURL, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	outsider := uuid.New()
	store.GrantRole(outsider, domain.RoleOther)
	rec := call(outsider)
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	rec = call(caller)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var body RedistributeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Redistributed)

	ticket, _ := store.Ticket(t1)
	assert.Equal(t, y, *ticket.AssignedTo)
	assert.Equal(t, domain.StatusEscalated, ticket.Status)

	rec = call(caller)
	assert.JSONEq(t, `{"redistributed":0}`, rec.Body.String())
}

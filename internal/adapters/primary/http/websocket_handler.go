package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	wsAdapter "github.com/lorrc/support-redistributor/internal/adapters/primary/websocket"
	"github.com/lorrc/support-redistributor/internal/auth"
	"github.com/lorrc/support-redistributor/internal/config"
	apperrors "github.com/lorrc/support-redistributor/internal/core/errors"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// WebSocketHandler handles WebSocket connection upgrades for support agents
type WebSocketHandler struct {
	hub             *wsAdapter.Hub
	tm              *auth.TokenManager
	authzService    ports.AuthorizationService
	presenceService ports.PresenceService
	errorHandler    *ErrorHandler
	upgrader        websocket.Upgrader
	logger          *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	authzService ports.AuthorizationService,
	presenceService ports.PresenceService,
	errorHandler *ErrorHandler,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:             hub,
		tm:              tm,
		authzService:    authzService,
		presenceService: presenceService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles WebSocket connection requests
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	// 1. Authenticate the connection via query parameter
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.logger.Warn("websocket connection rejected: missing token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
		)
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Missing token"))
		return
	}

	claims, err := h.tm.ValidateToken(tokenString)
	if err != nil {
		h.logger.Warn("websocket connection rejected: invalid token",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Invalid or expired token"))
		return
	}
	userID, _ := claims.UserID()

	// Only support staff receive redistribution events.
	if err := h.authzService.RequireSupportAccess(r.Context(), userID); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	// 2. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"user_id", userID,
			"error", err,
		)
		return
	}

	h.logger.Info("websocket connection established",
		"request_id", requestID,
		"user_id", userID,
		"remote_addr", r.RemoteAddr,
	)

	// 3. Register the client and start its pumps
	client := wsAdapter.NewClient(h.hub, conn, userID, h.presenceService, h.logger)
	if !client.Start() {
		_ = conn.Close()
	}
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/support-redistributor/internal/adapters/primary/http/middleware"
	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// PresenceHandler receives agent heartbeats over REST.
type PresenceHandler struct {
	presenceService ports.PresenceService
	errorHandler    *ErrorHandler
	logger          *slog.Logger
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(
	presenceService ports.PresenceService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "presence"),
	}
}

// RegisterRoutes registers the /support/presence routes.
func (h *PresenceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/heartbeat", h.HandleHeartbeat)
}

// HandleHeartbeat handles POST /support/presence/heartbeat.
func (h *PresenceHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := mw.GetUserID(r.Context())

	if HandleError(w, r, h.presenceService.Heartbeat(r.Context(), agentID), h.errorHandler) {
		return
	}

	WriteNoContent(w)
}

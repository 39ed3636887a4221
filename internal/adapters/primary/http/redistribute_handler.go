package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/support-redistributor/internal/adapters/primary/http/middleware"
	"github.com/lorrc/support-redistributor/internal/core/ports"
	"github.com/lorrc/support-redistributor/internal/infrastructure/logging"
)

// RedistributePath is the function route mounted under /functions/v1.
const RedistributePath = "/support-auto-redistribute"

// RedistributeHandler exposes the stalled-ticket sweep as an HTTP function.
type RedistributeHandler struct {
	redistributionService ports.RedistributionService
	errorHandler          *ErrorHandler
	logger                *slog.Logger
}

// NewRedistributeHandler creates a new RedistributeHandler.
func NewRedistributeHandler(
	redistributionService ports.RedistributionService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *RedistributeHandler {
	return &RedistributeHandler{
		redistributionService: redistributionService,
		errorHandler:          errorHandler,
		logger:                logger.With("handler", "redistribute"),
	}
}

// RegisterRoutes registers the function route. Any method other than OPTIONS
// triggers a run; protect wraps only the trigger so preflight stays anonymous.
func (h *RedistributeHandler) RegisterRoutes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.With(protect...).HandleFunc(RedistributePath, h.HandleRedistribute)
	// Must come after HandleFunc, which claims every method.
	r.Options(RedistributePath, h.HandlePreflight)
}

// HandlePreflight answers a bare OPTIONS request. Browser preflights are
// completed by the CORS middleware before reaching here.
func (h *RedistributeHandler) HandlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleRedistribute runs one sweep on behalf of the authenticated caller.
func (h *RedistributeHandler) HandleRedistribute(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithTrigger(r.Context(), "http")
	actorID := mw.GetUserID(ctx)

	result, err := h.redistributionService.Redistribute(ctx, actorID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(ctx, "manual redistribution finished",
		"actor_id", actorID,
		"redistributed", result.Redistributed,
		"lock_skipped", result.LockSkipped,
	)

	WriteJSON(w, http.StatusOK, RedistributeResponse{Redistributed: result.Redistributed})
}

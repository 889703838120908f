// Package handler provides the HTTP surface of the annotation engine.
package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/scope"
	"github.com/pinreview/backend/internal/session"
	"github.com/pinreview/backend/internal/syncer"
	"github.com/pinreview/backend/internal/videorange"
)

// Handler provides HTTP handlers for targets, comments and viewer sessions.
type Handler struct {
	coord    *syncer.Coordinator
	sessions *session.Manager
	limiter  *RateLimiter
	logger   *zap.Logger

	// targets this handler holds open, so that consecutive requests on a
	// target share one write queue
	mu   sync.Mutex
	held map[string]struct{}

	streamsDone chan struct{}
	stopOnce    sync.Once
}

// NewHandler creates a new handler. limiter may be nil to disable write
// rate limiting.
func NewHandler(coord *syncer.Coordinator, sessions *session.Manager, limiter *RateLimiter, logger *zap.Logger) *Handler {
	return &Handler{
		coord:    coord,
		sessions: sessions,
		limiter:  limiter,
		logger:   logger,
		held:     make(map[string]struct{}),

		streamsDone: make(chan struct{}),
	}
}

// StopStreams ends every open event stream and refuses new ones. The HTTP
// server waits on open connections during shutdown, so it runs first.
func (h *Handler) StopStreams() {
	h.stopOnce.Do(func() {
		close(h.streamsDone)
		h.logger.Info("Event streams stopped")
	})
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	write := func(c *gin.Context) { c.Next() }
	if h.limiter != nil {
		write = h.limiter.Middleware()
	}

	targets := rg.Group("/targets")
	targets.POST("", write, h.CreateTarget)
	targets.GET("/:id", h.GetTarget)
	targets.DELETE("/:id", write, h.DeleteTarget)
	targets.POST("/:id/assets", write, h.AddAsset)
	targets.DELETE("/:id/assets/:assetId", write, h.RemoveAsset)
	targets.POST("/:id/approvals/:assetId", write, h.ToggleApproval)
	targets.POST("/:id/approval", write, h.ToggleTargetApproval)
	targets.GET("/:id/progress", h.Progress)
	targets.GET("/:id/stream", h.Stream)

	targets.GET("/:id/comments", h.ListComments)
	targets.POST("/:id/comments", write, h.SubmitComment)
	targets.PATCH("/:id/comments/:commentId", write, h.UpdateComment)
	targets.DELETE("/:id/comments/:commentId", write, h.DeleteComment)
	targets.POST("/:id/comments/:commentId/resolve", write, h.ToggleResolved)
	targets.PUT("/:id/comments/:commentId/range", write, h.SetTimeRange)
	targets.POST("/:id/comments/:commentId/replies", write, h.AddReply)
	targets.DELETE("/:id/comments/:commentId/replies/:replyId", write, h.DeleteReply)

	sessions := rg.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("/:sid", h.GetSession)
	sessions.DELETE("/:sid", h.CloseSession)
	sessions.PUT("/:sid/view", h.SetView)
	sessions.PUT("/:sid/playback", h.SetPlayback)
	sessions.POST("/:sid/pin", h.PlacePin)
	sessions.DELETE("/:sid/pin", h.CancelPin)
	sessions.POST("/:sid/submit", write, h.SubmitPin)
	sessions.POST("/:sid/drag", h.BeginDrag)
	sessions.PUT("/:sid/drag", h.MoveDrag)
	sessions.POST("/:sid/drag/end", write, h.EndDrag)
	sessions.GET("/:sid/comments", h.VisibleComments)
	sessions.POST("/:sid/select/:commentId", h.Select)
}

// hold opens targetID on the coordinator unless this handler already holds
// it. Targets dropped by the coordinator, after a delete, are reopened.
func (h *Handler) hold(ctx context.Context, targetID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.held[targetID]; ok {
		if _, err := h.coord.Target(targetID); err == nil {
			return nil
		}
		delete(h.held, targetID)
	}
	if _, err := h.coord.Open(ctx, targetID); err != nil {
		return err
	}
	h.held[targetID] = struct{}{}
	return nil
}

func (h *Handler) release(targetID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.held, targetID)
}

// Close releases every target held by the handler.
func (h *Handler) Close() {
	h.mu.Lock()
	held := h.held
	h.held = make(map[string]struct{})
	h.mu.Unlock()

	for id := range held {
		h.coord.Close(id)
	}
}

// classify maps engine errors to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, syncer.ErrInvalidInput),
		errors.Is(err, scope.ErrIncompleteView),
		errors.Is(err, videorange.ErrBadDrag),
		errors.Is(err, videorange.ErrUnknownMode),
		errors.Is(err, session.ErrWrongSurface):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, syncer.ErrNotFound),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrNoPendingPin),
		errors.Is(err, session.ErrNoDrag),
		errors.Is(err, syncer.ErrTargetNotOpen):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// fail writes the error response for err. Internal errors are logged and
// replaced by msg.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		message = msg
	}
	c.JSON(status, models.ErrorResponse{Error: code, Message: message})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("Invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

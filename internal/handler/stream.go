package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/syncer"
)

const keepAlive = 25 * time.Second

// Stream sends the events of a target as server-sent events: the current
// comment list first, then every comments, target and warning event. The
// stream ends when the target is deleted, the client goes away or the
// service shuts down.
func (h *Handler) Stream(c *gin.Context) {
	id := c.Param("id")
	select {
	case <-h.streamsDone:
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "service_unavailable",
			Message: "service is shutting down",
		})
		return
	default:
	}
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}
	// subscribe before reading so no change falls between the two
	events, stop := h.coord.Subscribe(id)
	defer stop()

	comments, err := h.coord.Comments(id)
	if err != nil {
		h.fail(c, err, "failed to list comments")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent(string(syncer.EventComments), syncer.Event{Type: syncer.EventComments, TargetID: id, Comments: comments})
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.streamsDone:
			return
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
			if ev.Type == syncer.EventDeleted {
				h.logger.Debug("Stream ended by delete", zap.String("target_id", id))
				h.release(id)
				return
			}
		}
	}
}

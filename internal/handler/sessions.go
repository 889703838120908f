package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/session"
)

// lookup returns the session named in the path, or writes a 404.
func (h *Handler) lookup(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		h.fail(c, err, "failed to find session")
		return nil, false
	}
	return s, true
}

// CreateSession opens a viewer session on a target.
// @Summary Create viewer session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body models.CreateSessionRequest true "Target and initial view"
// @Success 201 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	s, err := h.sessions.Create(c.Request.Context(), req.TargetID, req.View)
	if err != nil {
		h.fail(c, err, "failed to create session")
		return
	}
	c.JSON(http.StatusCreated, models.SessionResponse{Data: s.State()})
}

// GetSession returns the state of a session.
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{Data: s.State()})
}

// CloseSession ends a session.
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("sid")); err != nil {
		h.fail(c, err, "failed to close session")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetView moves a session to another page, device, image or video asset.
// @Summary Change session view
// @Description Moving to another scope closes the composer and drops the pending pin.
// @Tags sessions
// @Accept json
// @Produce json
// @Param sid path string true "Session ID"
// @Param view body models.ViewRequest true "Viewer state"
// @Success 200 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/sessions/{sid}/view [put]
func (h *Handler) SetView(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := s.SetView(req)
	if err != nil {
		h.fail(c, err, "failed to change view")
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{Data: state})
}

// SetPlayback records the video playhead of a session.
func (h *Handler) SetPlayback(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.PlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{Data: s.SetPlayback(req.Time)})
}

// PlacePin opens the composer at a pointer position.
func (h *Handler) PlacePin(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := s.Pin(req)
	if err != nil {
		h.fail(c, err, "failed to place pin")
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{Data: state})
}

// CancelPin closes the composer.
func (h *Handler) CancelPin(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{Data: s.CancelPin()})
}

// SubmitPin creates a comment from the pending pin of a session.
func (h *Handler) SubmitPin(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.SessionSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	comment, err := s.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "failed to submit comment")
		return
	}
	c.JSON(http.StatusCreated, models.CommentResponse{Data: *comment})
}

// BeginDrag grabs a handle of a video comment's range.
func (h *Handler) BeginDrag(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.DragStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := s.BeginDrag(req.CommentID, req.Mode, req.PointerX, req.TrackWidth)
	if err != nil {
		h.fail(c, err, "failed to start drag")
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{Data: state})
}

// MoveDrag updates the drag preview.
func (h *Handler) MoveDrag(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.DragMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	rng, err := s.MoveDrag(req.PointerX)
	if err != nil {
		h.fail(c, err, "failed to move drag")
		return
	}
	c.JSON(http.StatusOK, models.DragResponse{Data: models.DragResult{Range: rng}})
}

// EndDrag releases the drag and commits the range if it changed.
func (h *Handler) EndDrag(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	rng, committed, err := s.EndDrag(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to end drag")
		return
	}
	c.JSON(http.StatusOK, models.DragResponse{Data: models.DragResult{Range: rng, Committed: committed}})
}

// VisibleComments returns what the session's viewer should render.
func (h *Handler) VisibleComments(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	visible, err := s.Visible()
	if err != nil {
		h.fail(c, err, "failed to list visible comments")
		return
	}
	c.JSON(http.StatusOK, models.VisibleCommentsResponse{Data: visible})
}

// Select focuses a comment and returns where to seek the video.
func (h *Handler) Select(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	at, seek, err := s.Select(c.Param("commentId"))
	if err != nil {
		h.fail(c, err, "failed to select comment")
		return
	}
	c.JSON(http.StatusOK, models.SeekResponse{Data: models.Seek{Time: at, Seek: seek}})
}

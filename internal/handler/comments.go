package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/scope"
	"github.com/pinreview/backend/internal/syncer"
)

// viewerState builds the viewer state of a target from scope fields.
func viewerState(t *models.AnnotationTarget, pageURL, deviceView, imageID, videoAssetID string) scope.ViewerState {
	return scope.ViewerState{
		TargetType:   t.Type,
		TargetID:     t.ID,
		DeviceView:   deviceView,
		PagePath:     pageURL,
		ImageID:      imageID,
		VideoAssetID: videoAssetID,
	}
}

// ListComments returns the comments of a target. With any of the scope
// query parameters set only the comments of that scope are returned.
// @Summary List comments
// @Tags comments
// @Produce json
// @Param id path string true "Target ID"
// @Param page_url query string false "Website page path"
// @Param device_view query string false "Website device view"
// @Param image_id query string false "Mockup image ID"
// @Param video_asset_id query string false "Video asset ID"
// @Success 200 {object} models.CommentsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/targets/{id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	id := c.Param("id")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	comments, err := h.coord.Comments(id)
	if err != nil {
		h.fail(c, err, "failed to list comments")
		return
	}

	pageURL, device := c.Query("page_url"), c.Query("device_view")
	imageID, videoID := c.Query("image_id"), c.Query("video_asset_id")
	if pageURL != "" || device != "" || imageID != "" || videoID != "" {
		target, err := h.coord.Target(id)
		if err != nil {
			h.fail(c, err, "failed to read target")
			return
		}
		key, err := scope.Resolve(viewerState(target, pageURL, device, imageID, videoID))
		if err != nil {
			h.fail(c, err, "failed to resolve scope")
			return
		}
		comments = scope.Filter(comments, key)
	}
	c.JSON(http.StatusOK, models.CommentsResponse{Data: comments})
}

// SubmitComment creates a comment without a viewer session.
// @Summary Submit comment
// @Tags comments
// @Accept json
// @Produce json
// @Param id path string true "Target ID"
// @Param comment body models.SubmitCommentRequest true "Comment data"
// @Success 201 {object} models.CommentResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/targets/{id}/comments [post]
func (h *Handler) SubmitComment(c *gin.Context) {
	id := c.Param("id")

	var req models.SubmitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}
	target, err := h.coord.Target(id)
	if err != nil {
		h.fail(c, err, "failed to read target")
		return
	}
	key, err := scope.Resolve(viewerState(target, req.PageURL, req.DeviceView, req.ImageID, req.VideoAssetID))
	if err != nil {
		h.fail(c, err, "failed to resolve scope")
		return
	}

	comment, err := h.coord.SubmitComment(c.Request.Context(), syncer.SubmitRequest{
		Scope:     key,
		Position:  req.Position,
		TimeRange: req.TimeRange,
		Text:      req.Text,
		AuthorID:  req.AuthorID,
		DueDate:   req.DueDate,
	})
	if err != nil {
		h.fail(c, err, "failed to submit comment")
		return
	}
	c.JSON(http.StatusCreated, models.CommentResponse{Data: *comment})
}

// UpdateComment patches the text, position or due date of a comment.
func (h *Handler) UpdateComment(c *gin.Context) {
	id, commentID := c.Param("id"), c.Param("commentId")

	var req models.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	comment, err := h.coord.UpdateComment(c.Request.Context(), id, commentID, req.Patch())
	if err != nil {
		h.fail(c, err, "failed to update comment")
		return
	}
	c.JSON(http.StatusOK, models.CommentResponse{Data: *comment})
}

// ToggleResolved flips a comment between active and resolved.
func (h *Handler) ToggleResolved(c *gin.Context) {
	id, commentID := c.Param("id"), c.Param("commentId")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	comment, err := h.coord.ToggleResolved(c.Request.Context(), id, commentID)
	if err != nil {
		h.fail(c, err, "failed to toggle comment")
		return
	}
	c.JSON(http.StatusOK, models.CommentResponse{Data: *comment})
}

// DeleteComment deletes a comment and its linked task.
func (h *Handler) DeleteComment(c *gin.Context) {
	id, commentID := c.Param("id"), c.Param("commentId")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	if err := h.coord.DeleteComment(c.Request.Context(), id, commentID); err != nil {
		h.fail(c, err, "failed to delete comment")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetTimeRange sets the range of a video comment.
func (h *Handler) SetTimeRange(c *gin.Context) {
	id, commentID := c.Param("id"), c.Param("commentId")

	var req models.TimeRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	comment, err := h.coord.SetTimeRange(c.Request.Context(), id, commentID, models.TimeRange{Start: req.Start, End: req.End})
	if err != nil {
		h.fail(c, err, "failed to set time range")
		return
	}
	c.JSON(http.StatusOK, models.CommentResponse{Data: *comment})
}

// AddReply adds a reply to a comment, or to one of its replies.
func (h *Handler) AddReply(c *gin.Context) {
	id, commentID := c.Param("id"), c.Param("commentId")

	var req models.AddReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	reply, err := h.coord.AddReply(c.Request.Context(), id, commentID, req.ParentID, req.AuthorID, req.Text)
	if err != nil {
		h.fail(c, err, "failed to add reply")
		return
	}
	c.JSON(http.StatusCreated, models.ReplyResponse{Data: *reply})
}

// DeleteReply removes a reply and everything under it.
func (h *Handler) DeleteReply(c *gin.Context) {
	id, commentID, replyID := c.Param("id"), c.Param("commentId"), c.Param("replyId")
	if err := h.hold(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to open target")
		return
	}

	if err := h.coord.DeleteReply(c.Request.Context(), id, commentID, replyID); err != nil {
		h.fail(c, err, "failed to delete reply")
		return
	}
	c.Status(http.StatusNoContent)
}

package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/thread"
)

// confirmed returns the confirmed copy of a comment.
func (c *Coordinator) confirmed(targetID, commentID string) (models.Comment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.targets[targetID]
	if !ok {
		return models.Comment{}, false
	}
	comment, ok := st.base.comment(commentID)
	if !ok {
		return models.Comment{}, false
	}
	return comment.Clone(), true
}

// syncDueDate runs the mirror side effect of a confirmed due date change.
// Mirror failures never revert the comment; they only warn.
func (c *Coordinator) syncDueDate(ctx context.Context, targetID, commentID string, action thread.DueDateAction) {
	if c.mirror == nil || action == thread.DueDateNone {
		return
	}
	comment, ok := c.confirmed(targetID, commentID)
	if !ok {
		return
	}

	c.logger.Debug("Syncing due date",
		zap.String("target_id", targetID),
		zap.String("comment_id", commentID),
		zap.Stringer("action", action),
	)

	switch action {
	case thread.DueDateCreate:
		c.createLinked(ctx, comment)
	case thread.DueDateUpdate:
		if comment.LinkedTaskID == "" {
			c.createLinked(ctx, comment)
			return
		}
		fields := models.LinkedFields{Title: &comment.Text, DueDate: comment.DueDate}
		if err := c.mirror.UpdateLinked(ctx, comment.LinkedTaskID, fields); err != nil {
			c.warn(targetID, commentID, "update_linked_task", err, false)
		}
	case thread.DueDateDelete:
		if err := c.mirror.DeleteLinked(ctx, commentID); err != nil {
			c.warn(targetID, commentID, "delete_linked_task", err, false)
			return
		}
		if comment.LinkedTaskID != "" {
			c.setLinked(ctx, comment, "")
		}
	}
}

// syncLinkedTitle keeps the linked task title in step with the comment text.
func (c *Coordinator) syncLinkedTitle(ctx context.Context, targetID, commentID string) {
	if c.mirror == nil {
		return
	}
	comment, ok := c.confirmed(targetID, commentID)
	if !ok || comment.LinkedTaskID == "" {
		return
	}
	if err := c.mirror.UpdateLinked(ctx, comment.LinkedTaskID, models.LinkedFields{Title: &comment.Text}); err != nil {
		c.warn(targetID, commentID, "update_linked_task", err, false)
	}
}

func (c *Coordinator) createLinked(ctx context.Context, comment models.Comment) {
	if comment.DueDate == nil {
		return
	}
	linkedID, err := c.mirror.CreateFromComment(ctx, comment.ID, comment.Text, *comment.DueDate, comment.AuthorID)
	if err != nil {
		c.warn(comment.TargetID, comment.ID, "create_linked_task", err, false)
		return
	}
	if linkedID != comment.LinkedTaskID {
		c.setLinked(ctx, comment, linkedID)
	}
}

// setLinked stores the linked task id on the comment and folds it into the
// confirmed state.
func (c *Coordinator) setLinked(ctx context.Context, comment models.Comment, linkedID string) {
	patch := models.CommentPatch{LinkedTaskID: &linkedID}
	if err := c.store.UpdateComment(ctx, comment.ID, patch); err != nil {
		c.warn(comment.TargetID, comment.ID, "link_task", fmt.Errorf("store linked task id: %w", err), false)
		return
	}
	c.fold(comment.TargetID, patchComment(comment.ID, patch, time.Time{}))
}

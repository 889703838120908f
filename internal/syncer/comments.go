package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/coords"
	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/pins"
	"github.com/pinreview/backend/internal/thread"
	"github.com/pinreview/backend/internal/videorange"
)

// SubmitRequest is a new comment as composed by a viewer.
type SubmitRequest struct {
	Scope     models.ScopeKey
	Position  *models.Position
	TimeRange *models.TimeRange
	Text      string
	AuthorID  string
	DueDate   *time.Time
}

func upsertComment(c models.Comment) func(*docState) {
	return func(d *docState) {
		for i := range d.comments {
			if d.comments[i].ID == c.ID {
				d.comments[i] = c.Clone()
				return
			}
		}
		d.comments = append(d.comments, c.Clone())
	}
}

// patchComment applies patch to the comment id. A zero at leaves UpdatedAt alone.
func patchComment(id string, patch models.CommentPatch, at time.Time) func(*docState) {
	return func(d *docState) {
		for i := range d.comments {
			if d.comments[i].ID == id {
				patch.Apply(&d.comments[i])
				if !at.IsZero() {
					d.comments[i].UpdatedAt = at
				}
				return
			}
		}
	}
}

func removeComments(ids ...string) func(*docState) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return func(d *docState) {
		kept := make([]models.Comment, 0, len(d.comments))
		for _, c := range d.comments {
			if _, ok := drop[c.ID]; !ok {
				kept = append(kept, c)
			}
		}
		d.comments = kept
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// validateScope checks that key addresses an existing sub-asset of target.
func validateScope(t *models.AnnotationTarget, key models.ScopeKey) error {
	if key.TargetID != t.ID {
		return invalid("scope belongs to target %q", key.TargetID)
	}
	if key.SubScopeID == "" {
		return invalid("scope has no sub-asset")
	}

	switch t.Type {
	case models.TargetWebsite:
		if key.DeviceView == "" {
			return invalid("website comments need a device view")
		}
		if len(t.DeviceViews) > 0 && !contains(t.DeviceViews, key.DeviceView) {
			return invalid("unknown device view %q", key.DeviceView)
		}
		if len(t.Pages) > 0 {
			found := false
			for _, p := range t.Pages {
				if p.Path == key.SubScopeID {
					found = true
					break
				}
			}
			if !found {
				return invalid("unknown page %q", key.SubScopeID)
			}
		}
	case models.TargetMockup, models.TargetVideo:
		if !t.HasSubAsset(key.SubScopeID) {
			return invalid("unknown sub-asset %q", key.SubScopeID)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// assetDuration is the duration of the video asset a comment sits on, or 0.
func assetDuration(t *models.AnnotationTarget, videoAssetID string) float64 {
	if asset, ok := t.VideoAsset(videoAssetID); ok {
		return asset.Duration
	}
	return 0
}

// SubmitComment validates and creates a comment with the next pin number of
// its scope. Invalid input is rejected before anything is applied.
func (c *Coordinator) SubmitComment(ctx context.Context, req SubmitRequest) (*models.Comment, error) {
	text, err := thread.ValidateText(req.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Position == nil {
		return nil, invalid("a pin position is required")
	}
	if req.AuthorID == "" {
		return nil, invalid("an author is required")
	}

	var created models.Comment
	err = c.mutate(req.Scope.TargetID, func(view *docState) (mutation, error) {
		target := &view.target
		if err := validateScope(target, req.Scope); err != nil {
			return mutation{}, err
		}
		if !coords.Valid(target.Type, *req.Position) {
			return mutation{}, invalid("position %+v is not valid for a %s", *req.Position, target.Type)
		}

		now := c.now()
		comment := models.Comment{
			ID:         c.newID(),
			TargetType: target.Type,
			PinNumber:  pins.Next(view.comments, req.Scope),
			Position:   *req.Position,
			Status:     models.StatusActive,
			AuthorID:   req.AuthorID,
			Text:       text,
			Replies:    []models.Reply{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		comment.SetScope(req.Scope)
		if target.Type == models.TargetVideo {
			duration := assetDuration(target, req.Scope.SubScopeID)
			rng := videorange.DefaultRange(0, duration)
			if req.TimeRange != nil {
				rng = videorange.Clamp(*req.TimeRange, duration)
			}
			comment.TimeRange = &rng
		}
		if req.DueDate != nil {
			due := req.DueDate.UTC()
			comment.DueDate = &due
		}
		created = comment.Clone()

		return mutation{
			op:        "create_comment",
			commentID: comment.ID,
			apply:     upsertComment(comment),
			remote: func(ctx context.Context) error {
				stored := comment.Clone()
				if _, err := c.store.CreateComment(ctx, &stored); err != nil {
					return fmt.Errorf("create comment: %w", err)
				}
				if err := c.store.IncrementCommentCount(ctx, comment.TargetID, 1); err != nil {
					c.warn(comment.TargetID, comment.ID, "increment_comment_count", err, false)
				}
				return nil
			},
			after: func(ctx context.Context) {
				if comment.DueDate != nil {
					c.syncDueDate(ctx, comment.TargetID, comment.ID, thread.DueDateCreate)
				}
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Submitted comment",
		zap.String("target_id", created.TargetID),
		zap.String("comment_id", created.ID),
		zap.Int("pin", created.PinNumber),
	)
	return &created, nil
}

// UpdateComment applies a last-write-wins patch and mirrors due date changes.
func (c *Coordinator) UpdateComment(ctx context.Context, targetID, commentID string, patch models.CommentPatch) (*models.Comment, error) {
	if patch.Empty() {
		return nil, invalid("nothing to update")
	}
	if patch.Text != nil {
		text, err := thread.ValidateText(*patch.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		patch.Text = &text
	}
	if patch.DueDate != nil && !patch.ClearDueDate {
		due := patch.DueDate.UTC()
		patch.DueDate = &due
	}

	var updated models.Comment
	err := c.mutate(targetID, func(view *docState) (mutation, error) {
		before, ok := view.comment(commentID)
		if !ok {
			return mutation{}, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		if patch.Position != nil && !coords.Valid(before.TargetType, *patch.Position) {
			return mutation{}, invalid("position %+v is not valid for a %s", *patch.Position, before.TargetType)
		}
		if patch.TimeRange != nil {
			if before.TargetType != models.TargetVideo {
				return mutation{}, invalid("only video comments have a time range")
			}
			rng := videorange.Clamp(*patch.TimeRange, assetDuration(&view.target, before.VideoAssetID))
			patch.TimeRange = &rng
		}

		now := c.now()
		after := before.Clone()
		patch.Apply(&after)
		after.UpdatedAt = now
		updated = after

		action := thread.PlanDueDate(before.DueDate, after.DueDate)
		textChanged := before.Text != after.Text

		return mutation{
			op:        "update_comment",
			commentID: commentID,
			apply:     patchComment(commentID, patch, now),
			remote: func(ctx context.Context) error {
				if err := c.store.UpdateComment(ctx, commentID, patch); err != nil {
					return fmt.Errorf("update comment: %w", err)
				}
				return nil
			},
			after: func(ctx context.Context) {
				if action != thread.DueDateNone {
					c.syncDueDate(ctx, targetID, commentID, action)
				} else if textChanged {
					c.syncLinkedTitle(ctx, targetID, commentID)
				}
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleResolved flips a comment between active and resolved.
func (c *Coordinator) ToggleResolved(ctx context.Context, targetID, commentID string) (*models.Comment, error) {
	var updated models.Comment
	err := c.mutate(targetID, func(view *docState) (mutation, error) {
		before, ok := view.comment(commentID)
		if !ok {
			return mutation{}, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		next := thread.Toggle(before.Status)
		patch := models.CommentPatch{Status: &next}

		now := c.now()
		updated = before.Clone()
		patch.Apply(&updated)
		updated.UpdatedAt = now

		return mutation{
			op:        "toggle_resolved",
			commentID: commentID,
			apply:     patchComment(commentID, patch, now),
			remote: func(ctx context.Context) error {
				if err := c.store.UpdateComment(ctx, commentID, patch); err != nil {
					return fmt.Errorf("toggle resolved: %w", err)
				}
				return nil
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteComment removes a comment. The remote sequence deletes the linked
// task first, then the comment, then decrements the target's counter.
func (c *Coordinator) DeleteComment(ctx context.Context, targetID, commentID string) error {
	return c.mutate(targetID, func(view *docState) (mutation, error) {
		comment, ok := view.comment(commentID)
		if !ok {
			return mutation{}, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		return mutation{
			op:        "delete_comment",
			commentID: commentID,
			apply:     removeComments(commentID),
			remote: func(ctx context.Context) error {
				return c.deleteRemote(ctx, comment)
			},
		}, nil
	})
}

// deleteRemote runs the delete cascade of one comment against the store.
func (c *Coordinator) deleteRemote(ctx context.Context, comment models.Comment) error {
	if c.mirror != nil && (comment.DueDate != nil || comment.LinkedTaskID != "") {
		if err := c.mirror.DeleteLinked(ctx, comment.ID); err != nil {
			return fmt.Errorf("delete linked task: %w", err)
		}
	}
	if err := c.store.DeleteComment(ctx, comment.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// already gone, someone else decremented
			return nil
		}
		return fmt.Errorf("delete comment: %w", err)
	}
	if err := c.store.IncrementCommentCount(ctx, comment.TargetID, -1); err != nil {
		c.warn(comment.TargetID, comment.ID, "decrement_comment_count", err, false)
	}
	return nil
}

// AddReply appends a reply under parentID, or at the top of the thread when
// parentID is empty.
func (c *Coordinator) AddReply(ctx context.Context, targetID, commentID, parentID, authorID, text string) (*models.Reply, error) {
	text, err := thread.ValidateText(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if authorID == "" {
		return nil, invalid("an author is required")
	}

	var reply models.Reply
	err = c.mutate(targetID, func(view *docState) (mutation, error) {
		comment, ok := view.comment(commentID)
		if !ok {
			return mutation{}, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		reply = models.Reply{
			ID:        c.newID(),
			AuthorID:  authorID,
			Text:      text,
			Timestamp: c.now(),
			Replies:   []models.Reply{},
		}
		replies, ok := thread.AddReply(comment.Replies, parentID, reply)
		if !ok {
			return mutation{}, fmt.Errorf("reply %s: %w", parentID, ErrNotFound)
		}
		return c.repliesMutation("add_reply", commentID, replies), nil
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// DeleteReply removes a reply and its whole subtree.
func (c *Coordinator) DeleteReply(ctx context.Context, targetID, commentID, replyID string) error {
	return c.mutate(targetID, func(view *docState) (mutation, error) {
		comment, ok := view.comment(commentID)
		if !ok {
			return mutation{}, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		replies, ok := thread.RemoveReply(comment.Replies, replyID)
		if !ok {
			return mutation{}, fmt.Errorf("reply %s: %w", replyID, ErrNotFound)
		}
		return c.repliesMutation("delete_reply", commentID, replies), nil
	})
}

func (c *Coordinator) repliesMutation(op, commentID string, replies []models.Reply) mutation {
	patch := models.CommentPatch{Replies: &replies}
	return mutation{
		op:        op,
		commentID: commentID,
		apply:     patchComment(commentID, patch, c.now()),
		remote: func(ctx context.Context) error {
			if err := c.store.UpdateComment(ctx, commentID, patch); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			return nil
		},
	}
}

// SetTimeRange commits a video comment's range, clamped to its asset.
func (c *Coordinator) SetTimeRange(ctx context.Context, targetID, commentID string, rng models.TimeRange) (*models.Comment, error) {
	return c.UpdateComment(ctx, targetID, commentID, models.CommentPatch{TimeRange: &rng})
}

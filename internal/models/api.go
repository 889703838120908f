package models

import (
	"time"
)

// Rect is an on-screen box in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CreateTargetRequest represents the request body for creating a review target.
type CreateTargetRequest struct {
	Type        TargetType        `json:"type" binding:"required,oneof=website mockup video"`
	Name        string            `json:"name" binding:"required,max=256"`
	DeviceViews []string          `json:"device_views"`
	Assets      []AddAssetRequest `json:"assets" binding:"dive"`
}

// AddAssetRequest represents a page, image or video asset to attach to a target.
type AddAssetRequest struct {
	Name     string  `json:"name" binding:"max=256"`
	Path     string  `json:"path"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration" binding:"gte=0"`
}

// SubmitCommentRequest represents the request body for creating a comment
// directly, without a viewer session.
type SubmitCommentRequest struct {
	PageURL      string     `json:"page_url"`
	DeviceView   string     `json:"device_view"`
	ImageID      string     `json:"image_id"`
	VideoAssetID string     `json:"video_asset_id"`
	Position     *Position  `json:"position"`
	TimeRange    *TimeRange `json:"time_range"`
	Text         string     `json:"text"`
	AuthorID     string     `json:"author_id" binding:"required"`
	DueDate      *time.Time `json:"due_date"`
}

// UpdateCommentRequest represents the editable fields of a comment.
type UpdateCommentRequest struct {
	Text         *string    `json:"text,omitempty"`
	Position     *Position  `json:"position,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
}

// Patch converts the request into a comment patch.
func (r UpdateCommentRequest) Patch() CommentPatch {
	return CommentPatch{
		Text:         r.Text,
		Position:     r.Position,
		DueDate:      r.DueDate,
		ClearDueDate: r.ClearDueDate,
	}
}

// AddReplyRequest represents a reply to a comment or to another reply.
type AddReplyRequest struct {
	ParentID string `json:"parent_id"`
	AuthorID string `json:"author_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// TimeRangeRequest represents the request body for setting a video comment range.
type TimeRangeRequest struct {
	Start float64 `json:"start" binding:"gte=0"`
	End   float64 `json:"end" binding:"gte=0"`
}

// ViewRequest is the viewer state a UI reports when it changes scope.
type ViewRequest struct {
	DeviceView   string `json:"device_view"`
	PagePath     string `json:"page_path"`
	ImageID      string `json:"image_id"`
	VideoAssetID string `json:"video_asset_id"`
}

// CreateSessionRequest opens a viewer session on a target.
type CreateSessionRequest struct {
	TargetID string      `json:"target_id" binding:"required"`
	View     ViewRequest `json:"view"`
}

// PinRequest places the pending pin of a session from a pointer event.
// Playback and Duration are only used for video targets.
type PinRequest struct {
	PointerX float64 `json:"pointer_x"`
	PointerY float64 `json:"pointer_y"`
	Rect     Rect    `json:"rect"`
	Zoom     float64 `json:"zoom"`
	Playback float64 `json:"playback"`
}

// SessionSubmitRequest submits the pending pin of a session.
type SessionSubmitRequest struct {
	Text     string     `json:"text"`
	AuthorID string     `json:"author_id" binding:"required"`
	DueDate  *time.Time `json:"due_date"`
}

// DragStartRequest starts a timeline drag on a video comment.
type DragStartRequest struct {
	CommentID  string  `json:"comment_id" binding:"required"`
	Mode       string  `json:"mode" binding:"required,oneof=move resize-start resize-end"`
	PointerX   float64 `json:"pointer_x"`
	TrackWidth float64 `json:"track_width" binding:"gt=0"`
}

// DragMoveRequest reports the pointer position during a drag.
type DragMoveRequest struct {
	PointerX float64 `json:"pointer_x"`
}

// PlaybackRequest reports the current video playback time of a session.
type PlaybackRequest struct {
	Time float64 `json:"time" binding:"gte=0"`
}

// TargetResponse wraps a single target in the API response.
type TargetResponse struct {
	Data AnnotationTarget `json:"data"`
}

// CommentResponse wraps a single comment in the API response.
type CommentResponse struct {
	Data Comment `json:"data"`
}

// CommentsResponse wraps multiple comments in the API response.
type CommentsResponse struct {
	Data []Comment `json:"data"`
}

// VisibleComment is a comment as rendered for a viewer session.
type VisibleComment struct {
	Comment
	// Active is set for video comments whose range covers the playback time.
	Active bool `json:"active"`
	// Dragging is set while the comment's range is being dragged.
	Dragging bool `json:"dragging"`
}

// VisibleCommentsResponse wraps the comments visible in a session.
type VisibleCommentsResponse struct {
	Data []VisibleComment `json:"data"`
}

// Progress is the approval completion of a target, computed on read.
type Progress struct {
	Approved int     `json:"approved"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
}

// ProgressResponse wraps a target's approval progress.
type ProgressResponse struct {
	Data Progress `json:"data"`
}

// SessionState is the client visible state of a viewer session.
type SessionState struct {
	ID           string     `json:"id"`
	TargetID     string     `json:"target_id"`
	Scope        ScopeKey   `json:"scope"`
	ComposerOpen bool       `json:"composer_open"`
	PendingPin   *Position  `json:"pending_pin,omitempty"`
	PendingRange *TimeRange `json:"pending_range,omitempty"`
	Playback     float64    `json:"playback"`
	DragMode     string     `json:"drag_mode"`
	DragPreview  *TimeRange `json:"drag_preview,omitempty"`
}

// SessionResponse wraps a session state.
type SessionResponse struct {
	Data SessionState `json:"data"`
}

// Seek tells the UI where to move the video playhead. Seek is false for
// comments without a time range.
type Seek struct {
	Time float64 `json:"time"`
	Seek bool    `json:"seek"`
}

// SeekResponse wraps a seek.
type SeekResponse struct {
	Data Seek `json:"data"`
}

// ApprovalState is the approval of one sub-asset, or of the whole target
// when SubAssetID is empty, after a toggle.
type ApprovalState struct {
	SubAssetID string   `json:"sub_asset_id,omitempty"`
	Approved   bool     `json:"approved"`
	Progress   Progress `json:"progress"`
}

// ApprovalResponse wraps an approval state.
type ApprovalResponse struct {
	Data ApprovalState `json:"data"`
}

// SubAssetResponse wraps an attached sub-asset.
type SubAssetResponse struct {
	Data SubAsset `json:"data"`
}

// ReplyResponse wraps a single reply.
type ReplyResponse struct {
	Data Reply `json:"data"`
}

// DragResult is the outcome of releasing a timeline drag.
type DragResult struct {
	Range     TimeRange `json:"range"`
	Committed bool      `json:"committed"`
}

// DragResponse wraps a drag preview or result.
type DragResponse struct {
	Data DragResult `json:"data"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

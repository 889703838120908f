package models

import (
	"time"
)

// Status is the resolve state of a comment.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// ScopeKey partitions comments for visibility and pin numbering.
// SubScopeID is a page path, an image id or a video asset id depending on
// the target type. DeviceView is only set for website targets.
type ScopeKey struct {
	TargetID   string `json:"target_id"`
	SubScopeID string `json:"sub_scope_id"`
	DeviceView string `json:"device_view,omitempty"`
}

// PositionKind tags which coordinate system a Position is expressed in.
type PositionKind string

const (
	// PositionRelative is a percent of the canvas, zoom and resolution independent.
	PositionRelative PositionKind = "relative"
	// PositionAbsolute is raw pixel offsets inside the video overlay.
	PositionAbsolute PositionKind = "absolute"
)

// Position is a pin location. For PositionRelative X and Y are percentages
// in [0,100]; for PositionAbsolute they are overlay pixels.
type Position struct {
	Kind PositionKind `json:"kind"`
	X    float64      `json:"x"`
	Y    float64      `json:"y"`
}

// Relative builds a canvas position.
func Relative(xPercent, yPercent float64) Position {
	return Position{Kind: PositionRelative, X: xPercent, Y: yPercent}
}

// Absolute builds a video overlay position.
func Absolute(x, y float64) Position {
	return Position{Kind: PositionAbsolute, X: x, Y: y}
}

// TimeRange is the [Start, End) interval, in seconds, a video comment
// applies to.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Contains reports whether t falls inside [Start, End).
func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

// Width returns End - Start.
func (r TimeRange) Width() float64 {
	return r.End - r.Start
}

// Reply is a node of a comment's reply tree.
type Reply struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Replies   []Reply   `json:"replies,omitempty"`
}

// Comment is a pinned review comment. The scope is denormalized into
// ImageID, PageURL+DeviceView or VideoAssetID according to TargetType.
type Comment struct {
	ID           string     `json:"id"`
	TargetID     string     `json:"target_id"`
	TargetType   TargetType `json:"target_type"`
	ImageID      string     `json:"image_id,omitempty"`
	PageURL      string     `json:"page_url,omitempty"`
	DeviceView   string     `json:"device_view,omitempty"`
	VideoAssetID string     `json:"video_asset_id,omitempty"`
	PinNumber    int        `json:"pin_number"`
	Position     Position   `json:"position"`
	TimeRange    *TimeRange `json:"time_range,omitempty"`
	Status       Status     `json:"status"`
	AuthorID     string     `json:"author_id"`
	Text         string     `json:"text"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	LinkedTaskID string     `json:"linked_task_id,omitempty"`
	Replies      []Reply    `json:"replies"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Scope returns the scope key derived from the denormalized fields.
func (c *Comment) Scope() ScopeKey {
	switch c.TargetType {
	case TargetWebsite:
		return ScopeKey{TargetID: c.TargetID, SubScopeID: c.PageURL, DeviceView: c.DeviceView}
	case TargetMockup:
		return ScopeKey{TargetID: c.TargetID, SubScopeID: c.ImageID}
	case TargetVideo:
		return ScopeKey{TargetID: c.TargetID, SubScopeID: c.VideoAssetID}
	}
	return ScopeKey{TargetID: c.TargetID}
}

// SetScope writes key into the denormalized scope fields for the comment's
// target type.
func (c *Comment) SetScope(key ScopeKey) {
	c.TargetID = key.TargetID
	c.ImageID, c.PageURL, c.DeviceView, c.VideoAssetID = "", "", "", ""
	switch c.TargetType {
	case TargetWebsite:
		c.PageURL = key.SubScopeID
		c.DeviceView = key.DeviceView
	case TargetMockup:
		c.ImageID = key.SubScopeID
	case TargetVideo:
		c.VideoAssetID = key.SubScopeID
	}
}

// Clone returns a deep copy of the comment.
func (c Comment) Clone() Comment {
	out := c
	if c.TimeRange != nil {
		tr := *c.TimeRange
		out.TimeRange = &tr
	}
	if c.DueDate != nil {
		d := *c.DueDate
		out.DueDate = &d
	}
	out.Replies = CloneReplies(c.Replies)
	return out
}

// CloneReplies deep copies a reply tree.
func CloneReplies(replies []Reply) []Reply {
	if replies == nil {
		return nil
	}
	out := make([]Reply, len(replies))
	for i, r := range replies {
		out[i] = r
		out[i].Replies = CloneReplies(r.Replies)
	}
	return out
}

// CloneComments deep copies a comment list.
func CloneComments(comments []Comment) []Comment {
	out := make([]Comment, len(comments))
	for i := range comments {
		out[i] = comments[i].Clone()
	}
	return out
}

// CommentPatch is a partial, last-write-wins update of a comment.
// ClearDueDate removes the due date and takes precedence over DueDate.
type CommentPatch struct {
	Text         *string    `json:"text,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	Position     *Position  `json:"position,omitempty"`
	TimeRange    *TimeRange `json:"time_range,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	LinkedTaskID *string    `json:"linked_task_id,omitempty"`
	Replies      *[]Reply   `json:"replies,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CommentPatch) Empty() bool {
	return p.Text == nil && p.Status == nil && p.Position == nil && p.TimeRange == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.LinkedTaskID == nil && p.Replies == nil
}

// Apply writes the patch fields into c.
func (p CommentPatch) Apply(c *Comment) {
	if p.Text != nil {
		c.Text = *p.Text
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
	if p.TimeRange != nil {
		tr := *p.TimeRange
		c.TimeRange = &tr
	}
	if p.ClearDueDate {
		c.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		c.DueDate = &d
	}
	if p.LinkedTaskID != nil {
		c.LinkedTaskID = *p.LinkedTaskID
	}
	if p.Replies != nil {
		c.Replies = CloneReplies(*p.Replies)
	}
}

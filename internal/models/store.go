package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a target, comment or linked task
// does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is the canonical state of a target as delivered by the store's
// subscription. Target is nil when only comments changed. Deleted marks the
// last snapshot of a target that no longer exists.
type Snapshot struct {
	TargetID string            `json:"target_id"`
	Target   *AnnotationTarget `json:"target,omitempty"`
	Comments []Comment         `json:"comments"`
	Deleted  bool              `json:"deleted,omitempty"`
}

// LinkedFields is a partial update of the task and calendar entry mirrored
// from a comment.
type LinkedFields struct {
	Title   *string    `json:"title,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

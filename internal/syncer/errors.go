package syncer

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInput rejects a mutation before any store call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown comments, replies and sub-assets.
	ErrNotFound = errors.New("not found")
	// ErrTargetNotOpen is returned when mutating a target that was not opened.
	ErrTargetNotOpen = errors.New("target not open")
)

// Warning reports a store or mirror write that failed after its mutation
// was already applied locally.
type Warning struct {
	TargetID  string    `json:"target_id"`
	CommentID string    `json:"comment_id,omitempty"`
	Op        string    `json:"op"`
	Message   string    `json:"message"`
	Reverted  bool      `json:"reverted"`
	At        time.Time `json:"at"`
}

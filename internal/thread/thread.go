// Package thread holds the comment lifecycle rules: the resolve toggle, the
// recursive reply tree and the due date side effect rule.
package thread

import (
	"errors"
	"strings"
	"time"

	"github.com/pinreview/backend/internal/models"
)

// MaxDepth bounds reply tree traversal. Writes are not capped.
const MaxDepth = 64

// ErrEmptyText is returned for comments and replies without text.
var ErrEmptyText = errors.New("text must not be empty")

// Toggle flips Active and Resolved. Any other value is treated as Active.
func Toggle(s models.Status) models.Status {
	if s == models.StatusResolved {
		return models.StatusActive
	}
	return models.StatusResolved
}

// ValidateText trims text and rejects it when blank.
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	return trimmed, nil
}

// DueDateAction is the mirror side effect of a due date change.
type DueDateAction int

const (
	DueDateNone DueDateAction = iota
	DueDateCreate
	DueDateUpdate
	DueDateDelete
)

func (a DueDateAction) String() string {
	switch a {
	case DueDateCreate:
		return "create"
	case DueDateUpdate:
		return "update"
	case DueDateDelete:
		return "delete"
	}
	return "none"
}

// PlanDueDate decides what to do with the linked task when a comment's due
// date goes from prev to next.
func PlanDueDate(prev, next *time.Time) DueDateAction {
	switch {
	case prev == nil && next == nil:
		return DueDateNone
	case prev == nil:
		return DueDateCreate
	case next == nil:
		return DueDateDelete
	case prev.Equal(*next):
		return DueDateNone
	}
	return DueDateUpdate
}

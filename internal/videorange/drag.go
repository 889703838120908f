package videorange

import (
	"errors"

	"github.com/pinreview/backend/internal/models"
)

// ErrBadDrag is returned when a drag cannot start.
var ErrBadDrag = errors.New("invalid drag")

// Drag is an in-progress timeline drag. It only holds local state; the
// resulting range is committed once, by the caller, when End is called.
type Drag struct {
	CommentID  string
	mode       DragMode
	startX     float64
	trackWidth float64
	duration   float64
	origin     models.TimeRange
	current    models.TimeRange
}

// Begin starts a drag of origin with the given handle at pointerX.
func Begin(commentID string, mode DragMode, pointerX, trackWidth, duration float64, origin models.TimeRange) (*Drag, error) {
	if mode == None {
		return nil, ErrBadDrag
	}
	if trackWidth <= 0 || duration <= 0 {
		return nil, ErrBadDrag
	}
	return &Drag{
		CommentID:  commentID,
		mode:       mode,
		startX:     pointerX,
		trackWidth: trackWidth,
		duration:   duration,
		origin:     origin,
		current:    origin,
	}, nil
}

// Mode returns the handle being dragged.
func (d *Drag) Mode() DragMode {
	return d.mode
}

// Move recomputes the range for the pointer at pointerX. The delta is
// always taken from the drag start, so repeated moves do not accumulate
// clamping error.
func (d *Drag) Move(pointerX float64) models.TimeRange {
	delta := DeltaSeconds(pointerX-d.startX, d.trackWidth, d.duration)
	d.current = Apply(d.mode, d.origin, delta, d.duration)
	return d.current
}

// Current returns the live preview range.
func (d *Drag) Current() models.TimeRange {
	return d.current
}

// Changed reports whether the drag moved the range at all.
func (d *Drag) Changed() bool {
	return d.current != d.origin
}

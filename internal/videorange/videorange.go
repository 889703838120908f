// Package videorange edits the time ranges of video comments: timeline
// drags, clamping and playback derived activity.
package videorange

import (
	"errors"
	"fmt"
	"math"

	"github.com/pinreview/backend/internal/models"
)

// MinWidth is the shortest range a video comment can cover, in seconds.
const MinWidth = 0.5

// DefaultWidth is the range given to a new comment placed during playback.
const DefaultWidth = 5.0

// DragMode identifies the timeline handle grabbed at drag start.
type DragMode int

const (
	None DragMode = iota
	Move
	ResizeStart
	ResizeEnd
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown drag mode")

// ParseMode maps the wire names to a DragMode.
func ParseMode(s string) (DragMode, error) {
	switch s {
	case "move":
		return Move, nil
	case "resize-start":
		return ResizeStart, nil
	case "resize-end":
		return ResizeEnd, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m DragMode) String() string {
	switch m {
	case Move:
		return "move"
	case ResizeStart:
		return "resize-start"
	case ResizeEnd:
		return "resize-end"
	}
	return "none"
}

// DeltaSeconds converts a horizontal pointer movement on a track of
// trackWidth pixels into seconds of a video of the given duration.
func DeltaSeconds(pointerDeltaX, trackWidth, duration float64) float64 {
	if trackWidth <= 0 {
		return 0
	}
	return pointerDeltaX * duration / trackWidth
}

// Apply returns origin moved by delta seconds with the given handle. All
// clamping rules live here; the result always lies within [0, duration].
func Apply(mode DragMode, origin models.TimeRange, delta, duration float64) models.TimeRange {
	switch mode {
	case Move:
		width := origin.Width()
		if width >= duration {
			return Clamp(models.TimeRange{Start: 0, End: duration}, duration)
		}
		start := clamp(origin.Start+delta, 0, duration-width)
		return models.TimeRange{Start: start, End: start + width}
	case ResizeStart:
		start := clamp(origin.Start+delta, 0, math.Max(0, origin.End-MinWidth))
		return Clamp(models.TimeRange{Start: start, End: origin.End}, duration)
	case ResizeEnd:
		end := math.Min(origin.End+delta, duration)
		end = math.Max(end, origin.Start+MinWidth)
		// a start already inside the last MinWidth gets pulled back
		return Clamp(models.TimeRange{Start: origin.Start, End: end}, duration)
	}
	return origin
}

// Clamp normalizes an arbitrary range to 0 <= start, end <= duration and
// end - start >= MinWidth. A duration of zero means unknown and only the
// lower bounds apply.
func Clamp(r models.TimeRange, duration float64) models.TimeRange {
	start := math.Max(0, r.Start)
	end := r.End
	if duration > 0 {
		end = math.Min(end, duration)
	}
	if end < start+MinWidth {
		end = start + MinWidth
	}
	if duration > 0 && end > duration {
		end = duration
		start = math.Max(0, end-MinWidth)
	}
	return models.TimeRange{Start: start, End: end}
}

// DefaultRange is the range of a comment created at the playback time.
func DefaultRange(playback, duration float64) models.TimeRange {
	start := math.Max(0, playback)
	if duration > 0 {
		start = math.Min(start, duration)
	}
	return Clamp(models.TimeRange{Start: start, End: start + DefaultWidth}, duration)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsActive reports whether a video comment's pin shows at playback time t.
func IsActive(c *models.Comment, t float64) bool {
	return c.TimeRange != nil && c.TimeRange.Contains(t)
}

// ActiveAt returns the ids of comments active at playback time t.
func ActiveAt(comments []models.Comment, t float64) []string {
	var ids []string
	for i := range comments {
		if IsActive(&comments[i], t) {
			ids = append(ids, comments[i].ID)
		}
	}
	return ids
}

// SeekTime is where selecting c moves the playhead.
func SeekTime(c *models.Comment) (float64, bool) {
	if c.TimeRange == nil {
		return 0, false
	}
	return c.TimeRange.Start, true
}

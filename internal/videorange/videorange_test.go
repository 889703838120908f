package videorange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinreview/backend/internal/models"
)

func TestApply(t *testing.T) {
	origin := models.TimeRange{Start: 10, End: 20}

	tests := []struct {
		name  string
		mode  DragMode
		delta float64
		want  models.TimeRange
	}{
		{"move forward", Move, 5, models.TimeRange{Start: 15, End: 25}},
		{"move past end keeps width", Move, 200, models.TimeRange{Start: 90, End: 100}},
		{"move before zero keeps width", Move, -50, models.TimeRange{Start: 0, End: 10}},
		{"resize start clamps to min width", ResizeStart, 15, models.TimeRange{Start: 19.5, End: 20}},
		{"resize start clamps at zero", ResizeStart, -30, models.TimeRange{Start: 0, End: 20}},
		{"resize end clamps to min width", ResizeEnd, -15, models.TimeRange{Start: 10, End: 10.5}},
		{"resize end clamps at duration", ResizeEnd, 500, models.TimeRange{Start: 10, End: 100}},
		{"none is identity", None, 7, origin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.mode, origin, tt.delta, 100)
			assert.InDelta(t, tt.want.Start, got.Start, 1e-9)
			assert.InDelta(t, tt.want.End, got.End, 1e-9)
			if tt.mode != None {
				assert.GreaterOrEqual(t, got.Width(), MinWidth-1e-9)
			}
		})
	}
}

func TestApply_StaysWithinDuration(t *testing.T) {
	tests := []struct {
		name   string
		mode   DragMode
		origin models.TimeRange
		delta  float64
		want   models.TimeRange
	}{
		{"resize end with start near the end", ResizeEnd, models.TimeRange{Start: 99.8, End: 100}, 1, models.TimeRange{Start: 99.5, End: 100}},
		{"resize end shrinking near the end", ResizeEnd, models.TimeRange{Start: 99.8, End: 100}, -5, models.TimeRange{Start: 99.5, End: 100}},
		{"resize start with end past duration", ResizeStart, models.TimeRange{Start: 90, End: 120}, 0, models.TimeRange{Start: 90, End: 100}},
		{"move wider than the video", Move, models.TimeRange{Start: 0, End: 150}, 10, models.TimeRange{Start: 0, End: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.mode, tt.origin, tt.delta, 100)
			assert.InDelta(t, tt.want.Start, got.Start, 1e-9)
			assert.InDelta(t, tt.want.End, got.End, 1e-9)
			assert.LessOrEqual(t, got.End, 100.0)
			assert.GreaterOrEqual(t, got.Width(), MinWidth-1e-9)
		})
	}
}

func TestDeltaSeconds(t *testing.T) {
	assert.Equal(t, 25.0, DeltaSeconds(200, 800, 100))
	assert.Equal(t, -10.0, DeltaSeconds(-80, 800, 100))
	assert.Equal(t, 0.0, DeltaSeconds(50, 0, 100))
}

func TestParseMode(t *testing.T) {
	for _, mode := range []DragMode{Move, ResizeStart, ResizeEnd} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	_, err := ParseMode("rotate")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, models.TimeRange{Start: 0, End: 5}, Clamp(models.TimeRange{Start: -3, End: 5}, 40))
	assert.Equal(t, models.TimeRange{Start: 8, End: 8.5}, Clamp(models.TimeRange{Start: 8, End: 4}, 40))
	assert.Equal(t, models.TimeRange{Start: 39.5, End: 40}, Clamp(models.TimeRange{Start: 40, End: 41}, 40))
	assert.Equal(t, models.TimeRange{Start: 50, End: 60}, Clamp(models.TimeRange{Start: 50, End: 60}, 0))
}

func TestDefaultRange(t *testing.T) {
	assert.Equal(t, models.TimeRange{Start: 12, End: 17}, DefaultRange(12, 40))
	assert.Equal(t, models.TimeRange{Start: 38, End: 40}, DefaultRange(38, 40))
	assert.Equal(t, models.TimeRange{Start: 39.5, End: 40}, DefaultRange(40, 40))
}

func TestActiveAt(t *testing.T) {
	comments := []models.Comment{
		{ID: "first", TimeRange: &models.TimeRange{Start: 5, End: 15}},
		{ID: "second", TimeRange: &models.TimeRange{Start: 20, End: 30}},
		{ID: "no-range"},
	}

	assert.Equal(t, []string{"first"}, ActiveAt(comments, 12))
	assert.Empty(t, ActiveAt(comments, 17))
	assert.Equal(t, []string{"second"}, ActiveAt(comments, 20))
	assert.Empty(t, ActiveAt(comments, 30), "end is exclusive")
}

func TestSeekTime(t *testing.T) {
	at, ok := SeekTime(&models.Comment{TimeRange: &models.TimeRange{Start: 7, End: 9}})
	assert.True(t, ok)
	assert.Equal(t, 7.0, at)

	_, ok = SeekTime(&models.Comment{})
	assert.False(t, ok)
}

func TestDrag(t *testing.T) {
	d, err := Begin("c1", ResizeStart, 100, 1000, 100, models.TimeRange{Start: 10, End: 20})
	require.NoError(t, err)
	assert.False(t, d.Changed())

	// 150px of 1000px over 100s is +15s
	assert.Equal(t, models.TimeRange{Start: 19.5, End: 20}, d.Move(250))
	// moving back is measured from the drag start, not the clamped value
	assert.Equal(t, models.TimeRange{Start: 15, End: 20}, d.Move(150))
	assert.True(t, d.Changed())
	assert.Equal(t, ResizeStart, d.Mode())
	assert.Equal(t, models.TimeRange{Start: 15, End: 20}, d.Current())
}

func TestBegin_Rejects(t *testing.T) {
	_, err := Begin("c1", None, 0, 100, 10, models.TimeRange{End: 1})
	assert.ErrorIs(t, err, ErrBadDrag)
	_, err = Begin("c1", Move, 0, 0, 10, models.TimeRange{End: 1})
	assert.ErrorIs(t, err, ErrBadDrag)
	_, err = Begin("c1", Move, 0, 100, 0, models.TimeRange{End: 1})
	assert.ErrorIs(t, err, ErrBadDrag)
}

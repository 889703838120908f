// Package coords converts pointer positions to stored pin positions and
// back.
//
// Canvas targets (websites and mockups) store percentages of the unzoomed
// container, so a pin keeps its place across zoom levels and window sizes.
// The video overlay is never zoomed and stores raw offsets inside the
// rendered video box.
package coords

import (
	"github.com/pinreview/backend/internal/models"
)

// Point is a screen position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// normalizeZoom treats non-positive zoom as 1.
func normalizeZoom(zoom float64) float64 {
	if zoom <= 0 {
		return 1
	}
	return zoom
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

// ToScopeRelative converts a pointer position over a canvas, whose layout box
// is rect and whose content is scaled by zoom, to a percent position.
// Out-of-bounds pointers are clamped to the nearest edge.
func ToScopeRelative(pointerX, pointerY float64, rect models.Rect, zoom float64) models.Position {
	zoom = normalizeZoom(zoom)
	w := rect.Width * zoom
	h := rect.Height * zoom

	var x, y float64
	if w > 0 {
		x = (pointerX - rect.Left) / w * 100
	}
	if h > 0 {
		y = (pointerY - rect.Top) / h * 100
	}
	return models.Relative(clamp(x, 0, 100), clamp(y, 0, 100))
}

// FromScopeRelative renders a percent position to screen pixels for the
// current container and zoom.
func FromScopeRelative(pos models.Position, rect models.Rect, zoom float64) Point {
	zoom = normalizeZoom(zoom)
	return Point{
		X: rect.Left + clamp(pos.X, 0, 100)/100*rect.Width*zoom,
		Y: rect.Top + clamp(pos.Y, 0, 100)/100*rect.Height*zoom,
	}
}

// ToOverlayPixels converts a pointer position over the video overlay to
// offsets inside it, clamped to the overlay box.
func ToOverlayPixels(pointerX, pointerY float64, overlay models.Rect) models.Position {
	return models.Absolute(
		clamp(pointerX-overlay.Left, 0, maxZero(overlay.Width)),
		clamp(pointerY-overlay.Top, 0, maxZero(overlay.Height)),
	)
}

// FromOverlayPixels renders a stored overlay position to screen pixels.
func FromOverlayPixels(pos models.Position, overlay models.Rect) Point {
	return Point{X: overlay.Left + pos.X, Y: overlay.Top + pos.Y}
}

func maxZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Viewport is what a renderer knows about the screen when drawing pins.
type Viewport struct {
	Canvas  models.Rect
	Zoom    float64
	Overlay models.Rect
}

// Render places any stored position on screen. It is the single place that
// switches on the position kind.
func Render(pos models.Position, vp Viewport) Point {
	switch pos.Kind {
	case models.PositionAbsolute:
		return FromOverlayPixels(pos, vp.Overlay)
	default:
		return FromScopeRelative(pos, vp.Canvas, vp.Zoom)
	}
}

// Place converts a pointer event to a stored position using the coordinate
// system of the given target type.
func Place(targetType models.TargetType, pointerX, pointerY float64, rect models.Rect, zoom float64) models.Position {
	if targetType == models.TargetVideo {
		return ToOverlayPixels(pointerX, pointerY, rect)
	}
	return ToScopeRelative(pointerX, pointerY, rect, zoom)
}

// Valid reports whether pos is well formed for the target type.
func Valid(targetType models.TargetType, pos models.Position) bool {
	switch targetType {
	case models.TargetVideo:
		return pos.Kind == models.PositionAbsolute && pos.X >= 0 && pos.Y >= 0
	case models.TargetWebsite, models.TargetMockup:
		return pos.Kind == models.PositionRelative &&
			pos.X >= 0 && pos.X <= 100 && pos.Y >= 0 && pos.Y <= 100
	}
	return false
}

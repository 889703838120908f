// Package scope resolves the annotation scope a viewer is looking at and
// filters comments down to it.
package scope

import (
	"errors"
	"fmt"

	"github.com/pinreview/backend/internal/models"
)

// ErrIncompleteView is returned when the viewer state lacks the part of the
// scope its target type needs.
var ErrIncompleteView = errors.New("viewer state does not identify a scope")

// ViewerState is what a UI currently shows of a target.
type ViewerState struct {
	TargetType   models.TargetType `json:"target_type"`
	TargetID     string            `json:"target_id"`
	DeviceView   string            `json:"device_view"`
	PagePath     string            `json:"page_path"`
	ImageID      string            `json:"image_id"`
	VideoAssetID string            `json:"video_asset_id"`
}

// Resolve returns the scope key of the viewer state.
func Resolve(v ViewerState) (models.ScopeKey, error) {
	if v.TargetID == "" {
		return models.ScopeKey{}, fmt.Errorf("%w: missing target", ErrIncompleteView)
	}

	switch v.TargetType {
	case models.TargetWebsite:
		if v.PagePath == "" || v.DeviceView == "" {
			return models.ScopeKey{}, fmt.Errorf("%w: website needs page and device", ErrIncompleteView)
		}
		return models.ScopeKey{TargetID: v.TargetID, SubScopeID: v.PagePath, DeviceView: v.DeviceView}, nil
	case models.TargetMockup:
		if v.ImageID == "" {
			return models.ScopeKey{}, fmt.Errorf("%w: mockup needs image", ErrIncompleteView)
		}
		return models.ScopeKey{TargetID: v.TargetID, SubScopeID: v.ImageID}, nil
	case models.TargetVideo:
		if v.VideoAssetID == "" {
			return models.ScopeKey{}, fmt.Errorf("%w: video needs asset", ErrIncompleteView)
		}
		return models.ScopeKey{TargetID: v.TargetID, SubScopeID: v.VideoAssetID}, nil
	}
	return models.ScopeKey{}, fmt.Errorf("%w: unknown target type %q", ErrIncompleteView, v.TargetType)
}

// Matches reports whether c belongs to key. Device view is compared for
// every key, so a website pin placed on one device never shows on another.
func Matches(c *models.Comment, key models.ScopeKey) bool {
	return c.Scope() == key
}

// Filter returns the comments of comments that belong to key, in order.
func Filter(comments []models.Comment, key models.ScopeKey) []models.Comment {
	out := make([]models.Comment, 0, len(comments))
	for i := range comments {
		if Matches(&comments[i], key) {
			out = append(out, comments[i])
		}
	}
	return out
}

// ForSubAsset returns the comments attached to a page id, image id or video
// asset id of target, across every device view.
func ForSubAsset(target *models.AnnotationTarget, comments []models.Comment, subAssetID string) []models.Comment {
	sub := subAssetID
	if target.Type == models.TargetWebsite {
		// website comments carry the page path, not the page id
		page, ok := target.Page(subAssetID)
		if !ok {
			return nil
		}
		sub = page.Path
	}

	var out []models.Comment
	for _, c := range comments {
		if c.TargetID == target.ID && c.Scope().SubScopeID == sub {
			out = append(out, c)
		}
	}
	return out
}

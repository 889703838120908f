// Package models contains the data models for the application.
package models

import (
	"time"
)

// TargetType identifies which kind of review target a comment is attached to.
type TargetType string

const (
	TargetWebsite TargetType = "website"
	TargetMockup  TargetType = "mockup"
	TargetVideo   TargetType = "video"
)

// Valid reports whether t is one of the known target types.
func (t TargetType) Valid() bool {
	switch t {
	case TargetWebsite, TargetMockup, TargetVideo:
		return true
	}
	return false
}

// Page is a page of an embedded website, addressed by its path.
type Page struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Image is a single mockup image.
type Image struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// VideoAsset is one variant of a video target.
type VideoAsset struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// AnnotationTarget is a website, mockup or video that reviewers comment on.
// Only the sub-asset list matching Type is populated.
type AnnotationTarget struct {
	ID          string       `json:"id"`
	Type        TargetType   `json:"type"`
	Name        string       `json:"name"`
	Pages       []Page       `json:"pages,omitempty"`
	DeviceViews []string     `json:"device_views,omitempty"`
	Images      []Image      `json:"images,omitempty"`
	VideoAssets []VideoAsset `json:"video_assets,omitempty"`

	// ApprovedIDs holds the approved sub-asset ids (page, image or video asset).
	ApprovedIDs []string `json:"approved_ids"`
	// Approved is the whole-target flag used when the target has no sub-assets.
	Approved bool `json:"approved"`

	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SubAssetIDs returns the ids of the sub-assets that can be approved.
func (t *AnnotationTarget) SubAssetIDs() []string {
	var ids []string
	switch t.Type {
	case TargetWebsite:
		for _, p := range t.Pages {
			ids = append(ids, p.ID)
		}
	case TargetMockup:
		for _, img := range t.Images {
			ids = append(ids, img.ID)
		}
	case TargetVideo:
		for _, v := range t.VideoAssets {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

// HasSubAsset reports whether id names one of the target's sub-assets.
func (t *AnnotationTarget) HasSubAsset(id string) bool {
	for _, existing := range t.SubAssetIDs() {
		if existing == id {
			return true
		}
	}
	return false
}

// Page returns the page with the given id.
func (t *AnnotationTarget) Page(id string) (Page, bool) {
	for _, p := range t.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return Page{}, false
}

// VideoAsset returns the video asset with the given id.
func (t *AnnotationTarget) VideoAsset(id string) (VideoAsset, bool) {
	for _, v := range t.VideoAssets {
		if v.ID == id {
			return v, true
		}
	}
	return VideoAsset{}, false
}

// SubAsset is the union of the fields needed to attach a page, image or
// video asset to a target.
type SubAsset struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Path     string  `json:"path,omitempty"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

// AddSubAsset appends asset to the list matching the target type.
func (t *AnnotationTarget) AddSubAsset(asset SubAsset) {
	switch t.Type {
	case TargetWebsite:
		t.Pages = append(t.Pages, Page{ID: asset.ID, Path: asset.Path, URL: asset.URL})
	case TargetMockup:
		t.Images = append(t.Images, Image{ID: asset.ID, Name: asset.Name, URL: asset.URL})
	case TargetVideo:
		t.VideoAssets = append(t.VideoAssets, VideoAsset{ID: asset.ID, Name: asset.Name, URL: asset.URL, Duration: asset.Duration})
	}
}

// RemoveSubAsset drops the sub-asset and its approval entry. It reports
// whether anything was removed.
func (t *AnnotationTarget) RemoveSubAsset(id string) bool {
	removed := false
	switch t.Type {
	case TargetWebsite:
		kept := t.Pages[:0]
		for _, p := range t.Pages {
			if p.ID == id {
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		t.Pages = kept
	case TargetMockup:
		kept := t.Images[:0]
		for _, img := range t.Images {
			if img.ID == id {
				removed = true
				continue
			}
			kept = append(kept, img)
		}
		t.Images = kept
	case TargetVideo:
		kept := t.VideoAssets[:0]
		for _, v := range t.VideoAssets {
			if v.ID == id {
				removed = true
				continue
			}
			kept = append(kept, v)
		}
		t.VideoAssets = kept
	}

	approved := t.ApprovedIDs[:0]
	for _, a := range t.ApprovedIDs {
		if a != id {
			approved = append(approved, a)
		}
	}
	t.ApprovedIDs = approved
	return removed
}

// Clone returns a deep copy of the target.
func (t AnnotationTarget) Clone() AnnotationTarget {
	out := t
	out.Pages = append([]Page(nil), t.Pages...)
	out.DeviceViews = append([]string(nil), t.DeviceViews...)
	out.Images = append([]Image(nil), t.Images...)
	out.VideoAssets = append([]VideoAsset(nil), t.VideoAssets...)
	out.ApprovedIDs = append([]string(nil), t.ApprovedIDs...)
	return out
}

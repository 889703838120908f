// Package approval tracks which sub-assets of a target are approved.
package approval

import (
	"github.com/pinreview/backend/internal/models"
)

// IsApproved reports whether subAssetID is approved. An empty subAssetID
// addresses the whole-target flag used by targets without sub-assets.
func IsApproved(t *models.AnnotationTarget, subAssetID string) bool {
	if subAssetID == "" {
		return t.Approved
	}
	for _, id := range t.ApprovedIDs {
		if id == subAssetID {
			return true
		}
	}
	return false
}

// Set marks subAssetID approved or not. Setting the current value is a no-op.
func Set(t *models.AnnotationTarget, subAssetID string, approved bool) {
	if subAssetID == "" {
		t.Approved = approved
		return
	}
	if IsApproved(t, subAssetID) == approved {
		return
	}
	if approved {
		t.ApprovedIDs = append(t.ApprovedIDs, subAssetID)
		return
	}
	kept := make([]string, 0, len(t.ApprovedIDs))
	for _, id := range t.ApprovedIDs {
		if id != subAssetID {
			kept = append(kept, id)
		}
	}
	t.ApprovedIDs = kept
}

// Toggle flips the approval of subAssetID and returns the new value.
func Toggle(t *models.AnnotationTarget, subAssetID string) bool {
	next := !IsApproved(t, subAssetID)
	Set(t, subAssetID, next)
	return next
}

// Progress computes approved/total on read. A target without sub-assets
// counts as a single asset carried by its whole-target flag.
func Progress(t *models.AnnotationTarget) models.Progress {
	ids := t.SubAssetIDs()
	if len(ids) == 0 {
		p := models.Progress{Total: 1}
		if t.Approved {
			p.Approved = 1
			p.Percent = 100
		}
		return p
	}

	approved := 0
	for _, id := range ids {
		if IsApproved(t, id) {
			approved++
		}
	}
	return models.Progress{
		Approved: approved,
		Total:    len(ids),
		Percent:  float64(approved) / float64(len(ids)) * 100,
	}
}

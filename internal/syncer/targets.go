package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/approval"
	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/scope"
)

// validateAsset checks that asset carries what a sub-asset of type t needs.
func validateAsset(t models.TargetType, asset models.SubAsset) error {
	switch t {
	case models.TargetWebsite:
		if !strings.HasPrefix(asset.Path, "/") {
			return invalid("page path %q must start with /", asset.Path)
		}
	case models.TargetMockup:
		if asset.URL == "" {
			return invalid("image url is required")
		}
	case models.TargetVideo:
		if asset.URL == "" {
			return invalid("video url is required")
		}
		// ranges are clamped to the duration, so it must be known
		if asset.Duration <= 0 {
			return invalid("video duration must be positive")
		}
	}
	return nil
}

// CreateTarget stores a new target with its initial sub-assets. It is not
// optimistic: the target does not exist locally until it is opened.
func (c *Coordinator) CreateTarget(ctx context.Context, req models.CreateTargetRequest) (*models.AnnotationTarget, error) {
	if !req.Type.Valid() {
		return nil, invalid("unknown target type %q", req.Type)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	now := c.now()
	target := &models.AnnotationTarget{
		ID:          c.newID(),
		Type:        req.Type,
		Name:        name,
		ApprovedIDs: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Type == models.TargetWebsite {
		target.DeviceViews = append([]string(nil), req.DeviceViews...)
	}
	for _, a := range req.Assets {
		asset := models.SubAsset{ID: c.newID(), Name: a.Name, Path: a.Path, URL: a.URL, Duration: a.Duration}
		if err := validateAsset(req.Type, asset); err != nil {
			return nil, err
		}
		target.AddSubAsset(asset)
	}

	if err := c.store.CreateTarget(ctx, target); err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	c.logger.Info("Created target",
		zap.String("target_id", target.ID),
		zap.String("type", string(target.Type)),
		zap.Int("sub_assets", len(target.SubAssetIDs())),
	)
	return target, nil
}

// DeleteTarget deletes every comment of the target, with the mirror
// cascade, then the target itself. Open viewers receive a deleted event.
func (c *Coordinator) DeleteTarget(ctx context.Context, targetID string) error {
	comments, err := c.store.ListComments(ctx, targetID)
	if err != nil {
		return fmt.Errorf("list comments of %s: %w", targetID, err)
	}
	if c.mirror != nil {
		for _, comment := range comments {
			if comment.DueDate == nil && comment.LinkedTaskID == "" {
				continue
			}
			if err := c.mirror.DeleteLinked(ctx, comment.ID); err != nil {
				return fmt.Errorf("delete linked task of %s: %w", comment.ID, err)
			}
		}
	}
	c.mu.Lock()
	st := c.targets[targetID]
	c.mu.Unlock()

	if err := c.store.DeleteTarget(ctx, targetID); err != nil {
		return fmt.Errorf("delete target: %w", err)
	}

	// the store's tombstone may already have retired st through follow,
	// which then sent the deleted event
	if st == nil || c.retire(targetID, st) {
		c.hub.publish(Event{Type: EventDeleted, TargetID: targetID})
	}
	c.logger.Info("Deleted target", zap.String("target_id", targetID), zap.Int("comments", len(comments)))
	return nil
}

// AddSubAsset attaches a page, image or video asset to an open target.
func (c *Coordinator) AddSubAsset(ctx context.Context, targetID string, asset models.SubAsset) (*models.SubAsset, error) {
	var added models.SubAsset
	err := c.mutate(targetID, func(view *docState) (mutation, error) {
		if err := validateAsset(view.target.Type, asset); err != nil {
			return mutation{}, err
		}
		if asset.ID == "" {
			asset.ID = c.newID()
		}
		if view.target.HasSubAsset(asset.ID) {
			return mutation{}, invalid("sub-asset %q already exists", asset.ID)
		}
		added = asset

		return mutation{
			op:            "add_sub_asset",
			touchesTarget: true,
			apply: func(d *docState) {
				if !d.target.HasSubAsset(asset.ID) {
					d.target.AddSubAsset(asset)
				}
			},
			remote: func(ctx context.Context) error {
				if err := c.store.AddSubAsset(ctx, targetID, asset); err != nil {
					return fmt.Errorf("add sub-asset: %w", err)
				}
				return nil
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveSubAsset detaches a sub-asset, deleting every comment in its scope
// and its approval entry. Comments of other sub-assets are unaffected.
func (c *Coordinator) RemoveSubAsset(ctx context.Context, targetID, subAssetID string) error {
	return c.mutate(targetID, func(view *docState) (mutation, error) {
		if !view.target.HasSubAsset(subAssetID) {
			return mutation{}, fmt.Errorf("sub-asset %s: %w", subAssetID, ErrNotFound)
		}
		doomed := scope.ForSubAsset(&view.target, view.comments, subAssetID)
		ids := make([]string, len(doomed))
		for i, comment := range doomed {
			ids[i] = comment.ID
		}
		dropComments := removeComments(ids...)

		return mutation{
			op:            "remove_sub_asset",
			touchesTarget: true,
			apply: func(d *docState) {
				d.target.RemoveSubAsset(subAssetID)
				dropComments(d)
			},
			remote: func(ctx context.Context) error {
				for _, comment := range doomed {
					if err := c.deleteRemote(ctx, comment); err != nil {
						return fmt.Errorf("remove sub-asset %s: %w", subAssetID, err)
					}
				}
				if err := c.store.RemoveSubAsset(ctx, targetID, subAssetID); err != nil {
					return fmt.Errorf("remove sub-asset: %w", err)
				}
				return nil
			},
		}, nil
	})
}

// ToggleApproval flips the approval of subAssetID and returns the new value.
// An empty subAssetID toggles the whole-target flag, which is only allowed
// for targets without sub-assets.
func (c *Coordinator) ToggleApproval(ctx context.Context, targetID, subAssetID string) (bool, error) {
	var next bool
	err := c.mutate(targetID, func(view *docState) (mutation, error) {
		if subAssetID == "" {
			if len(view.target.SubAssetIDs()) > 0 {
				return mutation{}, invalid("target has sub-assets, approve them individually")
			}
		} else if !view.target.HasSubAsset(subAssetID) {
			return mutation{}, fmt.Errorf("sub-asset %s: %w", subAssetID, ErrNotFound)
		}
		next = !approval.IsApproved(&view.target, subAssetID)
		approved := next

		return mutation{
			op:            "toggle_approval",
			touchesTarget: true,
			apply: func(d *docState) {
				approval.Set(&d.target, subAssetID, approved)
			},
			remote: func(ctx context.Context) error {
				if err := c.store.SetApproval(ctx, targetID, subAssetID, approved); err != nil {
					return fmt.Errorf("set approval: %w", err)
				}
				return nil
			},
		}, nil
	})
	return next, err
}

// Progress computes the approval progress of an open target.
func (c *Coordinator) Progress(targetID string) (models.Progress, error) {
	t, err := c.Target(targetID)
	if err != nil {
		return models.Progress{}, err
	}
	return approval.Progress(t), nil
}

package docstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/cache"
	"github.com/pinreview/backend/internal/database"
	"github.com/pinreview/backend/internal/models"
)

// Postgres persists to a database.Repository and fans canonical snapshots
// out through a cache.Cache. Every successful write reloads the target,
// refreshes the cached snapshot and publishes it.
type Postgres struct {
	repo   database.Repository
	cache  cache.Cache
	logger *zap.Logger
}

// NewPostgres creates a store over repo and c.
func NewPostgres(repo database.Repository, c cache.Cache, logger *zap.Logger) *Postgres {
	return &Postgres{repo: repo, cache: c, logger: logger}
}

// subScopeOf maps a sub-asset id to the sub-scope its comments carry.
func subScopeOf(t *models.AnnotationTarget, subAssetID string) string {
	if t.Type == models.TargetWebsite {
		if page, ok := t.Page(subAssetID); ok {
			return page.Path
		}
	}
	return subAssetID
}

func (p *Postgres) load(ctx context.Context, targetID string) (*models.Snapshot, error) {
	target, err := p.repo.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	comments, err := p.repo.ListComments(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{TargetID: targetID, Target: target, Comments: comments}, nil
}

// publish refreshes and broadcasts the target's snapshot. The write that
// triggered it already succeeded, so failures are only logged.
func (p *Postgres) publish(ctx context.Context, targetID string) {
	snap, err := p.load(ctx, targetID)
	if err != nil {
		p.logger.Warn("Failed to load snapshot", zap.String("target_id", targetID), zap.Error(err))
		_ = p.cache.Invalidate(ctx, targetID)
		return
	}
	if err := p.cache.SetSnapshot(ctx, snap); err != nil {
		p.logger.Warn("Failed to cache snapshot", zap.String("target_id", targetID), zap.Error(err))
	}
	p.broadcast(ctx, snap)
}

// broadcast publishes snap, retrying once. Other replicas only learn about
// the write through this message.
func (p *Postgres) broadcast(ctx context.Context, snap *models.Snapshot) {
	err := p.cache.Publish(ctx, snap)
	if err == nil {
		return
	}
	if err = p.cache.Publish(ctx, snap); err != nil {
		p.logger.Error("Failed to publish snapshot",
			zap.String("target_id", snap.TargetID),
			zap.Bool("deleted", snap.Deleted),
			zap.Error(err),
		)
	}
}

// CreateTarget inserts the target.
func (p *Postgres) CreateTarget(ctx context.Context, target *models.AnnotationTarget) error {
	if err := p.repo.CreateTarget(ctx, target); err != nil {
		return err
	}
	p.publish(ctx, target.ID)
	return nil
}

// GetTarget loads a target.
func (p *Postgres) GetTarget(ctx context.Context, id string) (*models.AnnotationTarget, error) {
	return p.repo.GetTarget(ctx, id)
}

// DeleteTarget deletes the target and its comments, drops the cached
// snapshot and tells subscribers the target is gone.
func (p *Postgres) DeleteTarget(ctx context.Context, id string) error {
	if err := p.repo.DeleteTarget(ctx, id); err != nil {
		return err
	}
	if err := p.cache.Invalidate(ctx, id); err != nil {
		p.logger.Warn("Failed to invalidate snapshot", zap.String("target_id", id), zap.Error(err))
	}
	p.broadcast(ctx, &models.Snapshot{TargetID: id, Deleted: true})
	return nil
}

// AddSubAsset attaches a sub-asset.
func (p *Postgres) AddSubAsset(ctx context.Context, targetID string, asset models.SubAsset) error {
	if err := p.repo.AddSubAsset(ctx, targetID, asset); err != nil {
		return err
	}
	p.publish(ctx, targetID)
	return nil
}

// RemoveSubAsset detaches a sub-asset and sweeps any comment still left in
// its scope, keeping the comment counter in step.
func (p *Postgres) RemoveSubAsset(ctx context.Context, targetID, subAssetID string) error {
	target, err := p.repo.GetTarget(ctx, targetID)
	if err != nil {
		return err
	}
	sub := subScopeOf(target, subAssetID)

	if err := p.repo.RemoveSubAsset(ctx, targetID, subAssetID); err != nil {
		return err
	}
	swept, err := p.repo.DeleteSubAssetComments(ctx, targetID, sub)
	if err != nil {
		return err
	}
	if swept > 0 {
		p.logger.Info("Swept sub-asset comments", zap.String("target_id", targetID), zap.Int("count", swept))
		if err := p.repo.IncrementCommentCount(ctx, targetID, -swept); err != nil {
			return err
		}
	}
	p.publish(ctx, targetID)
	return nil
}

// SetApproval sets a sub-asset's approval.
func (p *Postgres) SetApproval(ctx context.Context, targetID, subAssetID string, approved bool) error {
	if err := p.repo.SetApproval(ctx, targetID, subAssetID, approved); err != nil {
		return err
	}
	p.publish(ctx, targetID)
	return nil
}

// IncrementCommentCount adds delta to the target's comment counter.
func (p *Postgres) IncrementCommentCount(ctx context.Context, targetID string, delta int) error {
	if err := p.repo.IncrementCommentCount(ctx, targetID, delta); err != nil {
		return err
	}
	p.publish(ctx, targetID)
	return nil
}

// ListComments returns the target's comments.
func (p *Postgres) ListComments(ctx context.Context, targetID string) ([]models.Comment, error) {
	return p.repo.ListComments(ctx, targetID)
}

// CreateComment inserts a comment.
func (p *Postgres) CreateComment(ctx context.Context, comment *models.Comment) (string, error) {
	id, err := p.repo.CreateComment(ctx, comment)
	if err != nil {
		return "", err
	}
	p.publish(ctx, comment.TargetID)
	return id, nil
}

// UpdateComment applies a comment patch.
func (p *Postgres) UpdateComment(ctx context.Context, id string, patch models.CommentPatch) error {
	updated, err := p.repo.UpdateComment(ctx, id, patch)
	if err != nil {
		return err
	}
	p.publish(ctx, updated.TargetID)
	return nil
}

// DeleteComment removes a comment.
func (p *Postgres) DeleteComment(ctx context.Context, id string) error {
	deleted, err := p.repo.DeleteComment(ctx, id)
	if err != nil {
		return err
	}
	p.publish(ctx, deleted.TargetID)
	return nil
}

// Subscribe delivers the current snapshot, from cache or Postgres, then
// every published one until ctx is done.
func (p *Postgres) Subscribe(ctx context.Context, targetID string) (<-chan models.Snapshot, error) {
	published, err := p.cache.Subscribe(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to target %s: %w", targetID, err)
	}

	current, ok := p.cache.GetSnapshot(ctx, targetID)
	if !ok {
		current, err = p.load(ctx, targetID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot of %s: %w", targetID, err)
		}
		_ = p.cache.SetSnapshot(ctx, current)
	}

	out := make(chan models.Snapshot)
	go func() {
		defer close(out)
		select {
		case out <- *current:
		case <-ctx.Done():
			return
		}
		for snap := range published {
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Package syncer is the single mutation surface of the annotation engine.
//
// The Coordinator owns one local copy of every open target and its
// comments. Mutations are applied to that copy immediately, tagged as
// pending, and written to the document store in the background in the order
// they were issued. Canonical snapshots from the store's subscription
// replace the confirmed state; pending mutations are replayed on top of it
// until their write is confirmed or rejected. A rejected write removes
// exactly its own mutation from the local view and emits a warning.
package syncer

import (
	"context"
	"time"

	"github.com/pinreview/backend/internal/models"
)

// Store is the document store the engine persists to.
type Store interface {
	CreateTarget(ctx context.Context, target *models.AnnotationTarget) error
	GetTarget(ctx context.Context, id string) (*models.AnnotationTarget, error)
	DeleteTarget(ctx context.Context, id string) error
	AddSubAsset(ctx context.Context, targetID string, asset models.SubAsset) error
	RemoveSubAsset(ctx context.Context, targetID, subAssetID string) error
	SetApproval(ctx context.Context, targetID, subAssetID string, approved bool) error
	IncrementCommentCount(ctx context.Context, targetID string, delta int) error

	ListComments(ctx context.Context, targetID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, comment *models.Comment) (string, error)
	UpdateComment(ctx context.Context, id string, patch models.CommentPatch) error
	DeleteComment(ctx context.Context, id string) error

	// Subscribe delivers canonical snapshots of the target at least once
	// until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, targetID string) (<-chan models.Snapshot, error)
}

// TaskMirror mirrors comment due dates into tasks and calendar entries.
type TaskMirror interface {
	CreateFromComment(ctx context.Context, commentID, text string, dueDate time.Time, authorID string) (string, error)
	UpdateLinked(ctx context.Context, linkedID string, fields models.LinkedFields) error
	DeleteLinked(ctx context.Context, commentID string) error
}

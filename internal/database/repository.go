// Package database provides PostgreSQL storage for review targets and
// their comments.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/approval"
	"github.com/pinreview/backend/internal/config"
	"github.com/pinreview/backend/internal/models"
)

// Repository defines the interface for target and comment data operations.
type Repository interface {
	CreateTarget(ctx context.Context, target *models.AnnotationTarget) error
	GetTarget(ctx context.Context, id string) (*models.AnnotationTarget, error)
	// DeleteTarget removes the target; its comments cascade.
	DeleteTarget(ctx context.Context, id string) error
	AddSubAsset(ctx context.Context, targetID string, asset models.SubAsset) error
	// RemoveSubAsset removes the sub-asset and its approval entry.
	RemoveSubAsset(ctx context.Context, targetID, subAssetID string) error
	SetApproval(ctx context.Context, targetID, subAssetID string, approved bool) error
	// IncrementCommentCount atomically adds delta to the comment counter.
	IncrementCommentCount(ctx context.Context, targetID string, delta int) error

	// CreateComment inserts the comment with a server side creation time.
	CreateComment(ctx context.Context, comment *models.Comment) (string, error)
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, targetID string) ([]models.Comment, error)
	// UpdateComment writes only the fields set in patch.
	UpdateComment(ctx context.Context, id string, patch models.CommentPatch) (*models.Comment, error)
	DeleteComment(ctx context.Context, id string) (*models.Comment, error)
	// DeleteSubAssetComments removes every comment whose sub-scope is
	// subScopeID and returns how many were removed.
	DeleteSubAssetComments(ctx context.Context, targetID, subScopeID string) (int, error)

	// Close closes the database connection.
	Close()
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

// migrate creates the necessary database tables if they don't exist.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS targets (
			id UUID PRIMARY KEY,
			type VARCHAR(16) NOT NULL,
			name VARCHAR(256) NOT NULL,
			pages JSONB NOT NULL DEFAULT '[]',
			device_views JSONB NOT NULL DEFAULT '[]',
			images JSONB NOT NULL DEFAULT '[]',
			video_assets JSONB NOT NULL DEFAULT '[]',
			approved_ids JSONB NOT NULL DEFAULT '[]',
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			comment_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS comments (
			id UUID PRIMARY KEY,
			target_id UUID NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
			target_type VARCHAR(16) NOT NULL,
			image_id TEXT NOT NULL DEFAULT '',
			page_url TEXT NOT NULL DEFAULT '',
			device_view TEXT NOT NULL DEFAULT '',
			video_asset_id TEXT NOT NULL DEFAULT '',
			pin_number INTEGER NOT NULL,
			position JSONB NOT NULL,
			time_start DOUBLE PRECISION,
			time_end DOUBLE PRECISION,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			author_id TEXT NOT NULL,
			text TEXT NOT NULL,
			due_date TIMESTAMP WITH TIME ZONE,
			linked_task_id TEXT NOT NULL DEFAULT '',
			replies JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_comments_target_id ON comments(target_id, created_at);
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

const targetColumns = `id, type, name, pages, device_views, images, video_assets,
		approved_ids, approved, comment_count, created_at, updated_at`

const commentColumns = `id, target_id, target_type, image_id, page_url, device_view,
		video_asset_id, pin_number, position, time_start, time_end, status, author_id,
		text, due_date, linked_task_id, replies, created_at, updated_at`

type row interface {
	Scan(dest ...any) error
}

func scanTarget(rw row) (*models.AnnotationTarget, error) {
	var (
		t                                            models.AnnotationTarget
		pages, devices, images, videos, approvedJSON []byte
	)
	err := rw.Scan(&t.ID, &t.Type, &t.Name, &pages, &devices, &images, &videos,
		&approvedJSON, &t.Approved, &t.CommentCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		data []byte
		dest any
	}{
		{pages, &t.Pages},
		{devices, &t.DeviceViews},
		{images, &t.Images},
		{videos, &t.VideoAssets},
		{approvedJSON, &t.ApprovedIDs},
	} {
		if err := json.Unmarshal(col.data, col.dest); err != nil {
			return nil, fmt.Errorf("failed to decode target column: %w", err)
		}
	}
	return &t, nil
}

func scanComment(rw row) (*models.Comment, error) {
	var (
		c                  models.Comment
		position, replies  []byte
		timeStart, timeEnd *float64
	)
	err := rw.Scan(&c.ID, &c.TargetID, &c.TargetType, &c.ImageID, &c.PageURL, &c.DeviceView,
		&c.VideoAssetID, &c.PinNumber, &position, &timeStart, &timeEnd, &c.Status, &c.AuthorID,
		&c.Text, &c.DueDate, &c.LinkedTaskID, &replies, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(position, &c.Position); err != nil {
		return nil, fmt.Errorf("failed to decode position: %w", err)
	}
	if err := json.Unmarshal(replies, &c.Replies); err != nil {
		return nil, fmt.Errorf("failed to decode replies: %w", err)
	}
	if c.Replies == nil {
		c.Replies = []models.Reply{}
	}
	if timeStart != nil && timeEnd != nil {
		c.TimeRange = &models.TimeRange{Start: *timeStart, End: *timeEnd}
	}
	return &c, nil
}

func jsonb(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

// CreateTarget inserts a new target.
func (r *PostgresRepository) CreateTarget(ctx context.Context, target *models.AnnotationTarget) error {
	cols, err := targetJSON(target)
	if err != nil {
		return fmt.Errorf("failed to encode target: %w", err)
	}

	query := `
		INSERT INTO targets (` + targetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		target.ID, target.Type, target.Name,
		cols[0], cols[1], cols[2], cols[3], cols[4],
		target.Approved, target.CommentCount, target.CreatedAt, target.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create target", zap.Error(err))
		return fmt.Errorf("failed to create target: %w", err)
	}

	r.logger.Info("Created target", zap.String("id", target.ID))
	return nil
}

func targetJSON(t *models.AnnotationTarget) ([5][]byte, error) {
	var out [5][]byte
	for i, v := range []any{t.Pages, t.DeviceViews, t.Images, t.VideoAssets, t.ApprovedIDs} {
		data, err := jsonb(v)
		if err != nil {
			return out, err
		}
		out[i] = data
	}
	return out, nil
}

// GetTarget retrieves a target by its ID.
func (r *PostgresRepository) GetTarget(ctx context.Context, id string) (*models.AnnotationTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE id = $1`

	t, err := scanTarget(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get target", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return t, nil
}

// DeleteTarget removes a target and, by cascade, its comments.
func (r *PostgresRepository) DeleteTarget(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete target", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete target: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}

	r.logger.Info("Deleted target", zap.String("id", id))
	return nil
}

// updateTarget reads the target under a row lock, applies fn and writes
// back the sub-asset and approval columns.
func (r *PostgresRepository) updateTarget(ctx context.Context, id string, fn func(t *models.AnnotationTarget)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + targetColumns + ` FROM targets WHERE id = $1 FOR UPDATE`
	t, err := scanTarget(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock target: %w", err)
	}

	fn(t)

	cols, err := targetJSON(t)
	if err != nil {
		return fmt.Errorf("failed to encode target: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE targets
		SET pages = $2, device_views = $3, images = $4, video_assets = $5,
			approved_ids = $6, approved = $7, updated_at = NOW()
		WHERE id = $1
	`, id, cols[0], cols[1], cols[2], cols[3], cols[4], t.Approved)
	if err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	return tx.Commit(ctx)
}

// AddSubAsset appends a page, image or video asset to the target.
func (r *PostgresRepository) AddSubAsset(ctx context.Context, targetID string, asset models.SubAsset) error {
	err := r.updateTarget(ctx, targetID, func(t *models.AnnotationTarget) {
		if !t.HasSubAsset(asset.ID) {
			t.AddSubAsset(asset)
		}
	})
	if err != nil {
		r.logger.Error("Failed to add sub-asset", zap.String("target_id", targetID), zap.Error(err))
		return err
	}
	return nil
}

// RemoveSubAsset removes a sub-asset and its approval entry.
func (r *PostgresRepository) RemoveSubAsset(ctx context.Context, targetID, subAssetID string) error {
	err := r.updateTarget(ctx, targetID, func(t *models.AnnotationTarget) {
		t.RemoveSubAsset(subAssetID)
	})
	if err != nil {
		r.logger.Error("Failed to remove sub-asset", zap.String("target_id", targetID), zap.Error(err))
		return err
	}
	return nil
}

// SetApproval sets the approval of a sub-asset, or of the whole target
// when subAssetID is empty.
func (r *PostgresRepository) SetApproval(ctx context.Context, targetID, subAssetID string, approved bool) error {
	err := r.updateTarget(ctx, targetID, func(t *models.AnnotationTarget) {
		approval.Set(t, subAssetID, approved)
	})
	if err != nil {
		r.logger.Error("Failed to set approval", zap.String("target_id", targetID), zap.Error(err))
		return err
	}
	return nil
}

// IncrementCommentCount atomically adds delta to the target's counter.
func (r *PostgresRepository) IncrementCommentCount(ctx context.Context, targetID string, delta int) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE targets SET comment_count = comment_count + $2 WHERE id = $1`, targetID, delta)
	if err != nil {
		r.logger.Error("Failed to update comment count", zap.String("target_id", targetID), zap.Error(err))
		return fmt.Errorf("failed to update comment count: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("target %s: %w", targetID, models.ErrNotFound)
	}
	return nil
}

// CreateComment inserts a comment. Re-inserting an existing id is a no-op
// so retried creates are safe.
func (r *PostgresRepository) CreateComment(ctx context.Context, c *models.Comment) (string, error) {
	position, err := json.Marshal(c.Position)
	if err != nil {
		return "", fmt.Errorf("failed to encode position: %w", err)
	}
	replies, err := jsonb(c.Replies)
	if err != nil {
		return "", fmt.Errorf("failed to encode replies: %w", err)
	}
	var timeStart, timeEnd *float64
	if c.TimeRange != nil {
		timeStart, timeEnd = &c.TimeRange.Start, &c.TimeRange.End
	}

	query := `
		INSERT INTO comments (id, target_id, target_type, image_id, page_url, device_view,
			video_asset_id, pin_number, position, time_start, time_end, status, author_id,
			text, due_date, linked_task_id, replies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.pool.Exec(ctx, query,
		c.ID, c.TargetID, c.TargetType, c.ImageID, c.PageURL, c.DeviceView,
		c.VideoAssetID, c.PinNumber, position, timeStart, timeEnd, c.Status, c.AuthorID,
		c.Text, c.DueDate, c.LinkedTaskID, replies,
	)
	if err != nil {
		r.logger.Error("Failed to create comment", zap.String("target_id", c.TargetID), zap.Error(err))
		return "", fmt.Errorf("failed to create comment: %w", err)
	}

	r.logger.Info("Created comment", zap.String("id", c.ID), zap.Int("pin", c.PinNumber))
	return c.ID, nil
}

// GetComment retrieves a comment by its ID.
func (r *PostgresRepository) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`

	c, err := scanComment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get comment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, nil
}

// ListComments retrieves the comments of a target, oldest first.
func (r *PostgresRepository) ListComments(ctx context.Context, targetID string) ([]models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE target_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, targetID)
	if err != nil {
		r.logger.Error("Failed to list comments", zap.String("target_id", targetID), zap.Error(err))
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			r.logger.Error("Failed to scan comment row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// patchAssignments renders the SET clause of a comment patch. Arguments
// start at $2; $1 is the comment id.
func patchAssignments(patch models.CommentPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}

	if patch.Text != nil {
		add("text", *patch.Text)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Position != nil {
		data, err := json.Marshal(patch.Position)
		if err != nil {
			return nil, nil, err
		}
		add("position", data)
	}
	if patch.TimeRange != nil {
		add("time_start", patch.TimeRange.Start)
		add("time_end", patch.TimeRange.End)
	}
	if patch.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.LinkedTaskID != nil {
		add("linked_task_id", *patch.LinkedTaskID)
	}
	if patch.Replies != nil {
		data, err := jsonb(*patch.Replies)
		if err != nil {
			return nil, nil, err
		}
		add("replies", data)
	}
	sets = append(sets, "updated_at = NOW()")
	return sets, args, nil
}

// UpdateComment writes the patched fields and returns the stored comment.
func (r *PostgresRepository) UpdateComment(ctx context.Context, id string, patch models.CommentPatch) (*models.Comment, error) {
	sets, args, err := patchAssignments(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode comment patch: %w", err)
	}

	query := `UPDATE comments SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + commentColumns
	c, err := scanComment(r.pool.QueryRow(ctx, query, append([]any{id}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to update comment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	r.logger.Info("Updated comment", zap.String("id", id))
	return c, nil
}

// DeleteComment removes a comment and returns what was deleted.
func (r *PostgresRepository) DeleteComment(ctx context.Context, id string) (*models.Comment, error) {
	query := `DELETE FROM comments WHERE id = $1 RETURNING ` + commentColumns

	c, err := scanComment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to delete comment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to delete comment: %w", err)
	}

	r.logger.Info("Deleted comment", zap.String("id", id))
	return c, nil
}

// DeleteSubAssetComments removes every comment attached to subScopeID, on
// any device view.
func (r *PostgresRepository) DeleteSubAssetComments(ctx context.Context, targetID, subScopeID string) (int, error) {
	query := `
		DELETE FROM comments
		WHERE target_id = $1 AND (image_id = $2 OR page_url = $2 OR video_asset_id = $2)
	`
	result, err := r.pool.Exec(ctx, query, targetID, subScopeID)
	if err != nil {
		r.logger.Error("Failed to delete sub-asset comments", zap.String("target_id", targetID), zap.Error(err))
		return 0, fmt.Errorf("failed to delete sub-asset comments: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}

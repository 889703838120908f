// Package taskmirror mirrors comment due dates into a task and a calendar
// entry kept in a local SQLite database.
package taskmirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pinreview/backend/internal/models"
)

// Task is a task created from a comment with a due date.
type Task struct {
	ID        string    `db:"id" json:"id"`
	CommentID string    `db:"comment_id" json:"comment_id"`
	Title     string    `db:"title" json:"title"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Status    string    `db:"status" json:"status"`
	DueDate   time.Time `db:"due_date" json:"due_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CalendarEntry is the all-day calendar entry of a task.
type CalendarEntry struct {
	ID        string    `db:"id" json:"id"`
	TaskID    string    `db:"task_id" json:"task_id"`
	Title     string    `db:"title" json:"title"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	AllDay    bool      `db:"all_day" json:"all_day"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Mirror implements the engine's task mirror on SQLite.
type Mirror struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (or creates) the mirror database at dbPath and runs pending
// migrations. ":memory:" is accepted.
func Open(dbPath string, logger *zap.Logger) (*Mirror, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// one connection: a :memory: database is per connection, and sqlite
	// serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	m := &Mirror{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	if err := m.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("Opened task mirror", zap.String("path", dbPath))
	return m, nil
}

// Close closes the underlying database connection.
func (m *Mirror) Close() error {
	return m.db.Close()
}

func (m *Mirror) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := m.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		err = m.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, mg := range migrations {
		if mg.version <= currentVersion {
			continue
		}
		if _, err := m.db.Exec(mg.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", mg.version, err)
		}
	}
	return nil
}

// CreateFromComment creates a task and its calendar entry in one
// transaction and returns the task id. A comment already linked keeps its
// task, which is brought up to date instead.
func (m *Mirror) CreateFromComment(ctx context.Context, commentID, text string, dueDate time.Time, authorID string) (string, error) {
	title := strings.TrimSpace(text)
	if commentID == "" || title == "" {
		return "", fmt.Errorf("task needs a comment id and a title")
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := m.now()
	due := dueDate.UTC()

	var existing string
	err = tx.GetContext(ctx, &existing, "SELECT id FROM tasks WHERE comment_id = ?", commentID)
	switch {
	case err == nil:
		if err := updateLinked(ctx, tx, existing, models.LinkedFields{Title: &title, DueDate: &due}, now); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing task update: %w", err)
		}
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("looking up task of comment %s: %w", commentID, err)
	}

	task := Task{
		ID:        uuid.New().String(),
		CommentID: commentID,
		Title:     title,
		AuthorID:  authorID,
		Status:    "open",
		DueDate:   due,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO tasks (id, comment_id, title, author_id, status, due_date, created_at, updated_at)
		VALUES (:id, :comment_id, :title, :author_id, :status, :due_date, :created_at, :updated_at)`,
		task,
	)
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	entry := CalendarEntry{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Title:     title,
		StartsAt:  due,
		AllDay:    true,
		CreatedAt: now,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO calendar_entries (id, task_id, title, starts_at, all_day, created_at)
		VALUES (:id, :task_id, :title, :starts_at, :all_day, :created_at)`,
		entry,
	)
	if err != nil {
		return "", fmt.Errorf("creating calendar entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing task: %w", err)
	}

	m.logger.Info("Created linked task", zap.String("comment_id", commentID), zap.String("task_id", task.ID))
	return task.ID, nil
}

// UpdateLinked updates the title and due date of a task and its calendar
// entry. Unset fields are left alone.
func (m *Mirror) UpdateLinked(ctx context.Context, linkedID string, fields models.LinkedFields) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateLinked(ctx, tx, linkedID, fields, m.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func updateLinked(ctx context.Context, tx *sqlx.Tx, taskID string, fields models.LinkedFields, now time.Time) error {
	var (
		taskSets, entrySets []string
		taskArgs, entryArgs []interface{}
	)
	if fields.Title != nil {
		taskSets = append(taskSets, "title = ?")
		taskArgs = append(taskArgs, *fields.Title)
		entrySets = append(entrySets, "title = ?")
		entryArgs = append(entryArgs, *fields.Title)
	}
	if fields.DueDate != nil {
		due := fields.DueDate.UTC()
		taskSets = append(taskSets, "due_date = ?")
		taskArgs = append(taskArgs, due)
		entrySets = append(entrySets, "starts_at = ?")
		entryArgs = append(entryArgs, due)
	}
	taskSets = append(taskSets, "updated_at = ?")
	taskArgs = append(taskArgs, now, taskID)

	result, err := tx.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(taskSets, ", ")+" WHERE id = ?", taskArgs...)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", taskID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}

	if len(entrySets) == 0 {
		return nil
	}
	entryArgs = append(entryArgs, taskID)
	if _, err := tx.ExecContext(ctx,
		"UPDATE calendar_entries SET "+strings.Join(entrySets, ", ")+" WHERE task_id = ?", entryArgs...); err != nil {
		return fmt.Errorf("updating calendar entry of %s: %w", taskID, err)
	}
	return nil
}

// DeleteLinked deletes the task of a comment; its calendar entry cascades.
// Deleting a comment that has no task is a no-op.
func (m *Mirror) DeleteLinked(ctx context.Context, commentID string) error {
	result, err := m.db.ExecContext(ctx, "DELETE FROM tasks WHERE comment_id = ?", commentID)
	if err != nil {
		return fmt.Errorf("deleting task of comment %s: %w", commentID, err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		m.logger.Info("Deleted linked task", zap.String("comment_id", commentID))
	}
	return nil
}

// GetByComment returns the task linked to a comment and its calendar entry.
func (m *Mirror) GetByComment(ctx context.Context, commentID string) (*Task, *CalendarEntry, error) {
	var task Task
	err := m.db.GetContext(ctx, &task, "SELECT * FROM tasks WHERE comment_id = ?", commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("task of comment %s: %w", commentID, models.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("getting task of comment %s: %w", commentID, err)
	}

	var entry CalendarEntry
	err = m.db.GetContext(ctx, &entry, "SELECT * FROM calendar_entries WHERE task_id = ?", task.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return &task, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("getting calendar entry of %s: %w", task.ID, err)
	}
	return &task, &entry, nil
}

// Count returns how many tasks and calendar entries exist.
func (m *Mirror) Count(ctx context.Context) (tasks, entries int, err error) {
	if err = m.db.GetContext(ctx, &tasks, "SELECT COUNT(*) FROM tasks"); err != nil {
		return 0, 0, fmt.Errorf("counting tasks: %w", err)
	}
	if err = m.db.GetContext(ctx, &entries, "SELECT COUNT(*) FROM calendar_entries"); err != nil {
		return 0, 0, fmt.Errorf("counting calendar entries: %w", err)
	}
	return tasks, entries, nil
}

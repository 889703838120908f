package taskmirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
)

func setupMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestCreateFromComment(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()
	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	id, err := m.CreateFromComment(ctx, "c1", "  fix the header  ", due, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	task, entry, err := m.GetByComment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, "fix the header", task.Title)
	assert.Equal(t, "u1", task.AuthorID)
	assert.True(t, due.Equal(task.DueDate))
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.TaskID)
	assert.True(t, entry.AllDay)
	assert.True(t, due.Equal(entry.StartsAt))
}

func TestCreateFromComment_SecondCallReusesTask(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()
	first := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 7)

	id1, err := m.CreateFromComment(ctx, "c1", "review copy", first, "u1")
	require.NoError(t, err)
	id2, err := m.CreateFromComment(ctx, "c1", "review copy", second, "u1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	tasks, entries, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tasks)
	assert.Equal(t, 1, entries)

	task, entry, err := m.GetByComment(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, second.Equal(task.DueDate))
	assert.True(t, second.Equal(entry.StartsAt))
}

func TestCreateFromComment_RequiresTitle(t *testing.T) {
	m := setupMirror(t)

	_, err := m.CreateFromComment(context.Background(), "c1", "   ", time.Now(), "u1")
	assert.Error(t, err)
}

func TestUpdateLinked(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()
	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	id, err := m.CreateFromComment(ctx, "c1", "old title", due, "u1")
	require.NoError(t, err)

	title := "new title"
	require.NoError(t, m.UpdateLinked(ctx, id, models.LinkedFields{Title: &title}))

	task, entry, err := m.GetByComment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "new title", task.Title)
	assert.Equal(t, "new title", entry.Title)
	assert.True(t, due.Equal(task.DueDate), "due date left alone")

	later := due.AddDate(0, 1, 0)
	require.NoError(t, m.UpdateLinked(ctx, id, models.LinkedFields{DueDate: &later}))

	task, entry, err = m.GetByComment(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, later.Equal(task.DueDate))
	assert.True(t, later.Equal(entry.StartsAt))
}

func TestUpdateLinked_Unknown(t *testing.T) {
	m := setupMirror(t)
	title := "x"

	err := m.UpdateLinked(context.Background(), "missing", models.LinkedFields{Title: &title})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteLinked_CascadesAndIsIdempotent(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()

	_, err := m.CreateFromComment(ctx, "c1", "a", time.Now(), "u1")
	require.NoError(t, err)
	_, err = m.CreateFromComment(ctx, "c2", "b", time.Now(), "u1")
	require.NoError(t, err)

	require.NoError(t, m.DeleteLinked(ctx, "c1"))
	require.NoError(t, m.DeleteLinked(ctx, "c1"))
	require.NoError(t, m.DeleteLinked(ctx, "never-linked"))

	tasks, entries, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tasks)
	assert.Equal(t, 1, entries)

	_, _, err = m.GetByComment(ctx, "c1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

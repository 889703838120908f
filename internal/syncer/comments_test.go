package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/docstore"
	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/scope"
)

// MockMirror implements TaskMirror for testing
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) CreateFromComment(ctx context.Context, commentID, text string, dueDate time.Time, authorID string) (string, error) {
	args := m.Called(ctx, commentID, text, dueDate, authorID)
	return args.String(0), args.Error(1)
}

func (m *MockMirror) UpdateLinked(ctx context.Context, linkedID string, fields models.LinkedFields) error {
	return m.Called(ctx, linkedID, fields).Error(0)
}

func (m *MockMirror) DeleteLinked(ctx context.Context, commentID string) error {
	return m.Called(ctx, commentID).Error(0)
}

func TestSubmitComment_WebsiteDeviceScoping(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, websiteRequest())
	ctx := context.Background()

	desktop := models.ScopeKey{TargetID: target.ID, SubScopeID: "/about", DeviceView: "desktop"}
	phone := models.ScopeKey{TargetID: target.ID, SubScopeID: "/about", DeviceView: "phone"}

	created, err := f.c.SubmitComment(ctx, SubmitRequest{
		Scope: desktop, Position: posPtr(models.Relative(50, 10)), Text: "hero copy", AuthorID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created.PinNumber)
	assert.Equal(t, "/about", created.PageURL)
	assert.Equal(t, "desktop", created.DeviceView)
	assert.Nil(t, created.TimeRange)
	f.settle(t, target.ID)

	comments, err := f.c.Comments(target.ID)
	require.NoError(t, err)
	assert.Empty(t, scope.Filter(comments, phone))

	back := scope.Filter(comments, desktop)
	require.Len(t, back, 1)
	assert.Equal(t, 1, back[0].PinNumber)
	assert.Equal(t, models.Relative(50, 10), back[0].Position)

	// phone numbering is independent of desktop
	onPhone, err := f.c.SubmitComment(ctx, SubmitRequest{
		Scope: phone, Position: posPtr(models.Relative(1, 1)), Text: "phone", AuthorID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, onPhone.PinNumber)
}

func TestSubmitComment_Validation(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, websiteRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: "/about", DeviceView: "desktop"}

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"blank text", SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "   ", AuthorID: "u1"}},
		{"no position", SubmitRequest{Scope: key, Text: "x", AuthorID: "u1"}},
		{"no author", SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "x"}},
		{"pixel position on canvas", SubmitRequest{Scope: key, Position: posPtr(models.Absolute(10, 10)), Text: "x", AuthorID: "u1"}},
		{"out of range percent", SubmitRequest{Scope: key, Position: posPtr(models.Relative(101, 1)), Text: "x", AuthorID: "u1"}},
		{"unknown page", SubmitRequest{
			Scope:    models.ScopeKey{TargetID: target.ID, SubScopeID: "/nope", DeviceView: "desktop"},
			Position: posPtr(models.Relative(1, 1)), Text: "x", AuthorID: "u1",
		}},
		{"unknown device", SubmitRequest{
			Scope:    models.ScopeKey{TargetID: target.ID, SubScopeID: "/about", DeviceView: "watch"},
			Position: posPtr(models.Relative(1, 1)), Text: "x", AuthorID: "u1",
		}},
		{"missing device", SubmitRequest{
			Scope:    models.ScopeKey{TargetID: target.ID, SubScopeID: "/about"},
			Position: posPtr(models.Relative(1, 1)), Text: "x", AuthorID: "u1",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.SubmitComment(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	f.c.Wait()
	stored, err := f.store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "rejected input never reaches the store")
}

func TestPinNumbers_NotReusedAfterDelete(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	var ids []string
	for i := 0; i < 4; i++ {
		c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, i+1, c.PinNumber)
		ids = append(ids, c.ID)
	}
	require.NoError(t, f.c.DeleteComment(ctx, target.ID, ids[1]))

	next, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 5, next.PinNumber)

	other := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[1].ID}
	first, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: other, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.PinNumber)

	f.settle(t, target.ID)
	stored, err := f.store.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.CommentCount)
}

func TestToggleResolved_RoundTrip(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)

	resolved, err := f.c.ToggleResolved(ctx, target.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.Equal(t, "n", resolved.Text)

	active, err := f.c.ToggleResolved(ctx, target.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, active.Status)

	f.settle(t, target.ID)
	stored, err := f.store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored[0].Status)

	_, err = f.c.ToggleResolved(ctx, target.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateComment_BumpsUpdatedAt(t *testing.T) {
	f := newFixture(t)
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	f.c.now = func() time.Time { return clock }
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	text := " edited "
	updated, err := f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{Text: &text})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)
	assert.Equal(t, clock, updated.UpdatedAt)
	assert.Equal(t, models.StatusActive, updated.Status, "editing keeps the status")

	blank := "  "
	_, err = f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{Text: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.c.SetTimeRange(ctx, target.ID, c.ID, models.TimeRange{Start: 1, End: 2})
	assert.ErrorIs(t, err, ErrInvalidInput, "canvas comments have no range")
}

func TestDueDate_SetThenClearLeavesNothing(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}
	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)

	_, err = f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{DueDate: &due})
	require.NoError(t, err)
	f.settle(t, target.ID)

	tasks, entries, err := f.mirror.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tasks)
	assert.Equal(t, 1, entries)

	local, err := f.c.Comments(target.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, local[0].LinkedTaskID)

	_, err = f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{ClearDueDate: true})
	require.NoError(t, err)
	f.settle(t, target.ID)

	tasks, entries, err = f.mirror.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, tasks)
	assert.Zero(t, entries)

	local, err = f.c.Comments(target.ID)
	require.NoError(t, err)
	assert.Nil(t, local[0].DueDate)
	assert.Empty(t, local[0].LinkedTaskID)
}

func TestDueDate_SetTwiceKeepsOneEntity(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, videoRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.VideoAssets[0].ID}
	first := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 3)

	c, err := f.c.SubmitComment(ctx, SubmitRequest{
		Scope: key, Position: posPtr(models.Absolute(100, 40)), Text: "cut earlier", AuthorID: "u1", DueDate: &first,
	})
	require.NoError(t, err)
	_, err = f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{DueDate: &second})
	require.NoError(t, err)
	f.settle(t, target.ID)

	tasks, _, err := f.mirror.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tasks)

	task, entry, err := f.mirror.GetByComment(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, second.Equal(task.DueDate))
	assert.True(t, second.Equal(entry.StartsAt))
}

func TestDueDate_TextEditRenamesTask(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}
	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "old", AuthorID: "u1", DueDate: &due})
	require.NoError(t, err)
	f.settle(t, target.ID)

	text := "renamed"
	_, err = f.c.UpdateComment(ctx, target.ID, c.ID, models.CommentPatch{Text: &text})
	require.NoError(t, err)
	f.c.Wait()

	task, _, err := f.mirror.GetByComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", task.Title)
}

func TestDeleteComment_RemovesLinkedTaskFirst(t *testing.T) {
	mirror := new(MockMirror)
	store := docstore.NewMemory()
	c := NewCoordinator(store, mirror, zap.NewNop())
	ctx := context.Background()

	target, err := c.CreateTarget(ctx, mockupRequest())
	require.NoError(t, err)
	_, err = c.Open(ctx, target.ID)
	require.NoError(t, err)
	defer c.Close(target.ID)

	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}
	mirror.On("CreateFromComment", mock.Anything, mock.Anything, "n", due, "u1").Return("task-1", nil)

	created, err := c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1", DueDate: &due})
	require.NoError(t, err)
	c.Wait()

	// the mirror rejects first; the comment must survive
	mirror.On("DeleteLinked", mock.Anything, created.ID).Return(errOffline).Once()
	require.NoError(t, c.DeleteComment(ctx, target.ID, created.ID))
	c.Wait()

	stored, err := store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	local, err := c.Comments(target.ID)
	require.NoError(t, err)
	assert.Len(t, local, 1, "delete reverted locally")

	mirror.On("DeleteLinked", mock.Anything, created.ID).Return(nil).Once()
	require.NoError(t, c.DeleteComment(ctx, target.ID, created.ID))
	c.Wait()

	stored, err = store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	got, err := store.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CommentCount)
	mirror.AssertExpectations(t)
}

func TestDeleteComment_WithoutDueDateSkipsMirror(t *testing.T) {
	mirror := new(MockMirror)
	c := NewCoordinator(docstore.NewMemory(), mirror, zap.NewNop())
	ctx := context.Background()

	target, err := c.CreateTarget(ctx, mockupRequest())
	require.NoError(t, err)
	_, err = c.Open(ctx, target.ID)
	require.NoError(t, err)
	defer c.Close(target.ID)

	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}
	created, err := c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)
	require.NoError(t, c.DeleteComment(ctx, target.ID, created.ID))
	c.Wait()

	mirror.AssertNotCalled(t, "DeleteLinked", mock.Anything, mock.Anything)
	assert.ErrorIs(t, c.DeleteComment(ctx, target.ID, created.ID), ErrNotFound)
}

func TestReplies(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "root", AuthorID: "u1"})
	require.NoError(t, err)

	top, err := f.c.AddReply(ctx, target.ID, c.ID, "", "u2", "agreed")
	require.NoError(t, err)
	nested, err := f.c.AddReply(ctx, target.ID, c.ID, top.ID, "u1", "thanks")
	require.NoError(t, err)
	_, err = f.c.AddReply(ctx, target.ID, c.ID, top.ID, "u3", "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.c.AddReply(ctx, target.ID, c.ID, "missing", "u3", "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	f.settle(t, target.ID)

	stored, err := f.store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, stored[0].Replies, 1)
	require.Len(t, stored[0].Replies[0].Replies, 1)
	assert.Equal(t, nested.ID, stored[0].Replies[0].Replies[0].ID)

	require.NoError(t, f.c.DeleteReply(ctx, target.ID, c.ID, top.ID))
	assert.ErrorIs(t, f.c.DeleteReply(ctx, target.ID, c.ID, nested.ID), ErrNotFound, "subtree went with its parent")
	f.c.Wait()

	local, err := f.c.Comments(target.ID)
	require.NoError(t, err)
	assert.Empty(t, local[0].Replies)
}

func TestVideoComment_RangeDefaultsAndClamps(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, videoRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.VideoAssets[0].ID}

	c, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Absolute(320, 180)), Text: "n", AuthorID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, c.TimeRange)
	assert.Equal(t, models.TimeRange{Start: 0, End: 5}, *c.TimeRange)

	updated, err := f.c.SetTimeRange(ctx, target.ID, c.ID, models.TimeRange{Start: 38, End: 60})
	require.NoError(t, err)
	assert.Equal(t, models.TimeRange{Start: 38, End: 40}, *updated.TimeRange)

	_, err = f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "n", AuthorID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidInput, "video pins are overlay pixels")
}

package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/docstore"
	"github.com/pinreview/backend/internal/models"
	"github.com/pinreview/backend/internal/taskmirror"
)

// flakyStore fails the named operations on demand.
type flakyStore struct {
	*docstore.Memory

	mu   sync.Mutex
	fail map[string]error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: docstore.NewMemory(), fail: make(map[string]error)}
}

func (s *flakyStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *flakyStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = make(map[string]error)
}

func (s *flakyStore) err(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

func (s *flakyStore) CreateComment(ctx context.Context, c *models.Comment) (string, error) {
	if err := s.err("create"); err != nil {
		return "", err
	}
	return s.Memory.CreateComment(ctx, c)
}

func (s *flakyStore) UpdateComment(ctx context.Context, id string, patch models.CommentPatch) error {
	if err := s.err("update"); err != nil {
		return err
	}
	return s.Memory.UpdateComment(ctx, id, patch)
}

func (s *flakyStore) DeleteComment(ctx context.Context, id string) error {
	if err := s.err("delete"); err != nil {
		return err
	}
	return s.Memory.DeleteComment(ctx, id)
}

func (s *flakyStore) SetApproval(ctx context.Context, targetID, subAssetID string, approved bool) error {
	if err := s.err("approval"); err != nil {
		return err
	}
	return s.Memory.SetApproval(ctx, targetID, subAssetID, approved)
}

func (s *flakyStore) IncrementCommentCount(ctx context.Context, targetID string, delta int) error {
	if err := s.err("count"); err != nil {
		return err
	}
	return s.Memory.IncrementCommentCount(ctx, targetID, delta)
}

var errOffline = errors.New("store offline")

type fixture struct {
	c      *Coordinator
	store  *flakyStore
	mirror *taskmirror.Mirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mirror, err := taskmirror.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mirror.Close() })

	store := newFlakyStore()
	c := NewCoordinator(store, mirror, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return &fixture{c: c, store: store, mirror: mirror}
}

// open creates and opens a target.
func (f *fixture) open(t *testing.T, req models.CreateTargetRequest) *models.AnnotationTarget {
	t.Helper()
	ctx := context.Background()
	created, err := f.c.CreateTarget(ctx, req)
	require.NoError(t, err)
	opened, err := f.c.Open(ctx, created.ID)
	require.NoError(t, err)
	return opened
}

// settle waits for issued writes and for the store's snapshots to agree
// with the local view.
func (f *fixture) settle(t *testing.T, targetID string) {
	t.Helper()
	f.c.Wait()
	require.Eventually(t, func() bool {
		stored, err := f.store.ListComments(context.Background(), targetID)
		if err != nil {
			return false
		}
		local, err := f.c.Comments(targetID)
		if err != nil || len(local) != len(stored) {
			return false
		}
		byID := make(map[string]models.Comment, len(stored))
		for _, c := range stored {
			byID[c.ID] = c
		}
		for _, c := range local {
			s, ok := byID[c.ID]
			if !ok || s.Text != c.Text || s.Status != c.Status || s.LinkedTaskID != c.LinkedTaskID {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

// collectWarnings drains the target's events and keeps the warnings.
func (f *fixture) collectWarnings(t *testing.T, targetID string) func() []Warning {
	t.Helper()
	events, stop := f.c.Subscribe(targetID)
	t.Cleanup(stop)

	var (
		mu       sync.Mutex
		warnings []Warning
	)
	go func() {
		for ev := range events {
			if ev.Type == EventWarning {
				mu.Lock()
				warnings = append(warnings, *ev.Warning)
				mu.Unlock()
			}
		}
	}()
	return func() []Warning {
		mu.Lock()
		defer mu.Unlock()
		return append([]Warning(nil), warnings...)
	}
}

func websiteRequest() models.CreateTargetRequest {
	return models.CreateTargetRequest{
		Type:        models.TargetWebsite,
		Name:        "Marketing site",
		DeviceViews: []string{"desktop", "phone"},
		Assets: []models.AddAssetRequest{
			{Path: "/about", URL: "https://example.com/about"},
			{Path: "/pricing", URL: "https://example.com/pricing"},
		},
	}
}

func mockupRequest() models.CreateTargetRequest {
	return models.CreateTargetRequest{
		Type: models.TargetMockup,
		Name: "App screens",
		Assets: []models.AddAssetRequest{
			{Name: "login", URL: "https://cdn.example/login.png"},
			{Name: "home", URL: "https://cdn.example/home.png"},
		},
	}
}

func videoRequest() models.CreateTargetRequest {
	return models.CreateTargetRequest{
		Type:   models.TargetVideo,
		Name:   "Launch trailer",
		Assets: []models.AddAssetRequest{{Name: "cut 1", URL: "https://cdn.example/cut1.mp4", Duration: 40}},
	}
}

func TestOpen_UnknownTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMutate_RequiresOpenTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.ToggleResolved(context.Background(), "missing", "c1")
	assert.ErrorIs(t, err, ErrTargetNotOpen)
	_, err = f.c.Comments("missing")
	assert.ErrorIs(t, err, ErrTargetNotOpen)
}

func TestOpenClose_RefCounted(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())

	_, err := f.c.Open(context.Background(), target.ID)
	require.NoError(t, err)

	f.c.Close(target.ID)
	_, err = f.c.Comments(target.ID)
	require.NoError(t, err, "still open once")

	f.c.Close(target.ID)
	_, err = f.c.Comments(target.ID)
	assert.ErrorIs(t, err, ErrTargetNotOpen)
}

func TestReconcile_RemoteChangesReachTheView(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()

	// another client writes straight to the store
	_, err := f.store.Memory.CreateComment(ctx, &models.Comment{
		ID:         "remote-1",
		TargetID:   target.ID,
		TargetType: models.TargetMockup,
		ImageID:    target.Images[0].ID,
		PinNumber:  1,
		Position:   models.Relative(5, 5),
		Status:     models.StatusActive,
		AuthorID:   "someone-else",
		Text:       "from another tab",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		comments, err := f.c.Comments(target.ID)
		return err == nil && len(comments) == 1 && comments[0].ID == "remote-1"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRejectedWrite_RevertsOnlyItsMutation(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	warnings := f.collectWarnings(t, target.ID)
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	first, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(10, 10)), Text: "keep me", AuthorID: "u1"})
	require.NoError(t, err)
	f.settle(t, target.ID)

	f.store.failOn("update", errOffline)
	edited := "lost edit"
	updated, err := f.c.UpdateComment(ctx, target.ID, first.ID, models.CommentPatch{Text: &edited})
	require.NoError(t, err, "optimistic mutations do not fail the caller")
	assert.Equal(t, "lost edit", updated.Text)

	f.c.Wait()
	f.store.heal()

	comments, err := f.c.Comments(target.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "keep me", comments[0].Text)

	require.Eventually(t, func() bool { return len(warnings()) == 1 }, 2*time.Second, 5*time.Millisecond)
	w := warnings()[0]
	assert.Equal(t, "update_comment", w.Op)
	assert.Equal(t, first.ID, w.CommentID)
	assert.True(t, w.Reverted)
	assert.Contains(t, w.Message, "store offline")
}

func TestRejectedCreate_DropsTheComment(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	f.store.failOn("create", errOffline)
	_, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "doomed", AuthorID: "u1"})
	require.NoError(t, err)
	f.c.Wait()

	comments, err := f.c.Comments(target.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestCounterFailure_WarnsWithoutRevert(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	warnings := f.collectWarnings(t, target.ID)
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	f.store.failOn("count", errOffline)
	_, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "stays", AuthorID: "u1"})
	require.NoError(t, err)
	f.c.Wait()
	f.store.heal()

	comments, err := f.c.Comments(target.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	require.Eventually(t, func() bool { return len(warnings()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, warnings()[0].Reverted)
	assert.Equal(t, "increment_comment_count", warnings()[0].Op)
}

func TestWrites_RunInIssueOrder(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	created, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "v0", AuthorID: "u1"})
	require.NoError(t, err)
	for _, text := range []string{"v1", "v2", "v3"} {
		text := text
		_, err := f.c.UpdateComment(ctx, target.ID, created.ID, models.CommentPatch{Text: &text})
		require.NoError(t, err)
	}
	f.settle(t, target.ID)

	stored, err := f.store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "v3", stored[0].Text)
}

func TestShutdown_WaitsForWrites(t *testing.T) {
	f := newFixture(t)
	target := f.open(t, mockupRequest())
	ctx := context.Background()
	key := models.ScopeKey{TargetID: target.ID, SubScopeID: target.Images[0].ID}

	for i := 0; i < 5; i++ {
		_, err := f.c.SubmitComment(ctx, SubmitRequest{Scope: key, Position: posPtr(models.Relative(1, 1)), Text: "note", AuthorID: "u1"})
		require.NoError(t, err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.c.Shutdown(shutdownCtx))

	stored, err := f.store.ListComments(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func posPtr(p models.Position) *models.Position {
	return &p
}

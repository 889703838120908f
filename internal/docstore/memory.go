// Package docstore provides the document stores the annotation engine
// persists to: Postgres backed by a Redis snapshot cache, and an in-memory
// store for single-process deployments and tests.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinreview/backend/internal/approval"
	"github.com/pinreview/backend/internal/models"
)

// Memory is an in-process document store. Every write publishes the
// target's canonical snapshot to its subscribers.
type Memory struct {
	mu       sync.Mutex
	targets  map[string]*models.AnnotationTarget
	comments map[string]models.Comment
	subs     map[string]map[*mailbox]struct{}
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		targets:  make(map[string]*models.AnnotationTarget),
		comments: make(map[string]models.Comment),
		subs:     make(map[string]map[*mailbox]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTarget stores a copy of target.
func (m *Memory) CreateTarget(ctx context.Context, target *models.AnnotationTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.targets[target.ID]; ok {
		return fmt.Errorf("target %s already exists", target.ID)
	}
	t := target.Clone()
	m.targets[t.ID] = &t
	m.publishLocked(t.ID)
	return nil
}

// GetTarget returns a copy of the target.
func (m *Memory) GetTarget(ctx context.Context, id string) (*models.AnnotationTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.targets[id]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}
	out := t.Clone()
	return &out, nil
}

// DeleteTarget removes the target and all of its comments.
func (m *Memory) DeleteTarget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.targets[id]; !ok {
		return fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}
	delete(m.targets, id)
	for cid, c := range m.comments {
		if c.TargetID == id {
			delete(m.comments, cid)
		}
	}
	for box := range m.subs[id] {
		box.finish(models.Snapshot{TargetID: id, Deleted: true})
	}
	delete(m.subs, id)
	return nil
}

func (m *Memory) withTarget(id string, fn func(t *models.AnnotationTarget) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("target %s: %w", id, models.ErrNotFound)
	}
	if err := fn(t); err != nil {
		return err
	}
	t.UpdatedAt = m.now()
	m.publishLocked(id)
	return nil
}

// AddSubAsset appends a page, image or video asset.
func (m *Memory) AddSubAsset(ctx context.Context, targetID string, asset models.SubAsset) error {
	return m.withTarget(targetID, func(t *models.AnnotationTarget) error {
		if t.HasSubAsset(asset.ID) {
			return nil
		}
		t.AddSubAsset(asset)
		return nil
	})
}

// RemoveSubAsset drops a sub-asset and its approval entry, and sweeps any
// comment still left in its scope.
func (m *Memory) RemoveSubAsset(ctx context.Context, targetID, subAssetID string) error {
	return m.withTarget(targetID, func(t *models.AnnotationTarget) error {
		sub := subScopeOf(t, subAssetID)
		t.RemoveSubAsset(subAssetID)
		for id, c := range m.comments {
			if c.TargetID == targetID && c.Scope().SubScopeID == sub {
				delete(m.comments, id)
				t.CommentCount--
			}
		}
		return nil
	})
}

// SetApproval sets the approval of a sub-asset, or of the whole target when
// subAssetID is empty.
func (m *Memory) SetApproval(ctx context.Context, targetID, subAssetID string, approved bool) error {
	return m.withTarget(targetID, func(t *models.AnnotationTarget) error {
		approval.Set(t, subAssetID, approved)
		return nil
	})
}

// IncrementCommentCount adds delta to the target's comment counter.
func (m *Memory) IncrementCommentCount(ctx context.Context, targetID string, delta int) error {
	return m.withTarget(targetID, func(t *models.AnnotationTarget) error {
		t.CommentCount += delta
		return nil
	})
}

// ListComments returns the target's comments ordered by creation.
func (m *Memory) ListComments(ctx context.Context, targetID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.targets[targetID]; !ok {
		return nil, fmt.Errorf("target %s: %w", targetID, models.ErrNotFound)
	}
	return m.listLocked(targetID), nil
}

func (m *Memory) listLocked(targetID string) []models.Comment {
	out := []models.Comment{}
	for _, c := range m.comments {
		if c.TargetID == targetID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CreateComment stores the comment, assigning the creation time. An empty
// id is replaced with a new uuid.
func (m *Memory) CreateComment(ctx context.Context, comment *models.Comment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.targets[comment.TargetID]; !ok {
		return "", fmt.Errorf("target %s: %w", comment.TargetID, models.ErrNotFound)
	}
	c := comment.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := m.comments[c.ID]; ok {
		// retried create
		return c.ID, nil
	}
	now := m.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Replies == nil {
		c.Replies = []models.Reply{}
	}
	m.comments[c.ID] = c
	m.publishLocked(c.TargetID)
	return c.ID, nil
}

// UpdateComment applies patch to the stored comment.
func (m *Memory) UpdateComment(ctx context.Context, id string, patch models.CommentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	patch.Apply(&c)
	c.UpdatedAt = m.now()
	m.comments[id] = c
	m.publishLocked(c.TargetID)
	return nil
}

// DeleteComment removes the comment.
func (m *Memory) DeleteComment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	delete(m.comments, id)
	m.publishLocked(c.TargetID)
	return nil
}

// Subscribe delivers the current snapshot of the target, then one after
// every write, until ctx is done.
func (m *Memory) Subscribe(ctx context.Context, targetID string) (<-chan models.Snapshot, error) {
	m.mu.Lock()
	if _, ok := m.targets[targetID]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("target %s: %w", targetID, models.ErrNotFound)
	}
	box := newMailbox()
	if m.subs[targetID] == nil {
		m.subs[targetID] = make(map[*mailbox]struct{})
	}
	m.subs[targetID][box] = struct{}{}
	box.put(m.snapshotLocked(targetID))
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-box.done:
		}
		m.mu.Lock()
		delete(m.subs[targetID], box)
		m.mu.Unlock()
		box.close()
	}()
	return box.run(ctx), nil
}

func (m *Memory) snapshotLocked(targetID string) models.Snapshot {
	snap := models.Snapshot{TargetID: targetID, Comments: m.listLocked(targetID)}
	if t, ok := m.targets[targetID]; ok {
		c := t.Clone()
		snap.Target = &c
	}
	return snap
}

func (m *Memory) publishLocked(targetID string) {
	subs := m.subs[targetID]
	if len(subs) == 0 {
		return
	}
	snap := m.snapshotLocked(targetID)
	for box := range subs {
		box.put(snap)
	}
}
